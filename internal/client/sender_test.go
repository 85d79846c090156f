package client

import (
	"context"
	"errors"
	"testing"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakePush 实现 PushChannel 与 ReceiverChannel，保存注册的回调以便测试直接触发
type fakePush struct {
	mock.Mock
	onKeystroke    func(dto.KeystrokeBroadcast)
	onDeliveryAck  func(domain.DeliveryAck)
	onExecutionAck func(domain.ExecutionAck)
}

func (f *fakePush) SendKeystroke(roomCode string, eventType domain.EventType, payload string, clientEventID *int64) error {
	return f.Called(roomCode, eventType, payload, clientEventID).Error(0)
}

func (f *fakePush) Join(roomCode string, role domain.Role) error {
	return f.Called(roomCode, role).Error(0)
}

func (f *fakePush) SendExecutionAck(ack domain.ExecutionAck) error {
	return f.Called(ack).Error(0)
}

func (f *fakePush) OnKeystroke(fn func(dto.KeystrokeBroadcast)) { f.onKeystroke = fn }
func (f *fakePush) OnDeliveryAck(fn func(domain.DeliveryAck)) { f.onDeliveryAck = fn }
func (f *fakePush) OnExecutionAck(fn func(domain.ExecutionAck)) { f.onExecutionAck = fn }

type fakePolling struct {
	mock.Mock
}

func (f *fakePolling) Submit(ctx context.Context, roomCode string, eventType domain.EventType, payload string) (int64, error) {
	args := f.Called(roomCode, eventType, payload)
	return args.Get(0).(int64), args.Error(1)
}

func fixedRoom(code string) func() string { return func() string { return code } }

func TestSender_PushTracksAndResolves(t *testing.T) {
	push := new(fakePush)
	tracker, _, updates := newTracker()
	sender := NewSender(push, nil, tracker, NewMemoryCounter(), fixedRoom("1234"))

	push.On("SendKeystroke", "1234", domain.EventTypeLetter, "a", mock.MatchedBy(func(id *int64) bool {
		return id != nil && *id == 1
	})).Return(nil).Once()

	outcome := sender.SendEvent(context.Background(), domain.EventTypeLetter, "a")

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Pending)
	assert.Equal(t, int64(1), outcome.ClientEventID)
	assert.Equal(t, TransportPush, outcome.Transport)

	// 服务端确认经过 push 回调流入 tracker
	push.onDeliveryAck(domain.DeliveryAck{RoomCode: "1234", ClientEventID: 1, EventID: 1})
	push.onExecutionAck(domain.ExecutionAck{RoomCode: "1234", ClientEventID: 1, EventID: 1, OK: true})

	assert.Equal(t, []AckState{StateSent, StateQueued, StateResolvedOK}, states(*updates))
	push.AssertExpectations(t)
}

func TestSender_PushUnavailableFailsImmediately(t *testing.T) {
	push := new(fakePush)
	tracker, sched, updates := newTracker()
	sender := NewSender(push, nil, tracker, NewMemoryCounter(), fixedRoom("r"))
	push.On("SendKeystroke", "r", domain.EventTypeWord, "hi ", mock.Anything).Return(ErrTransportUnavailable).Once()

	outcome := sender.SendEvent(context.Background(), domain.EventTypeWord, "hi ")

	assert.ErrorIs(t, outcome.Err, ErrTransportUnavailable)
	assert.False(t, outcome.Pending)
	assert.Equal(t, 0, tracker.Pending(), "发送失败不应留下跟踪记录")
	assert.True(t, sched.last().stopped)

	// sent 之后必须有一个终态通知
	assert.Equal(t, []AckState{StateSent, StateAbandoned}, states(*updates))
	last := (*updates)[len(*updates)-1]
	assert.Equal(t, outcome.ClientEventID, last.ClientEventID)
	assert.ErrorIs(t, last.Err, ErrTransportUnavailable)
}

func TestSender_PollingIsSynchronous(t *testing.T) {
	polling := new(fakePolling)
	sender := NewSender(nil, polling, nil, nil, fixedRoom("abcd"))
	polling.On("Submit", "abcd", domain.EventTypeWord, "hi ").Return(int64(1), nil).Once()

	outcome := sender.SendEvent(context.Background(), domain.EventTypeWord, "hi ")

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Pending)
	assert.Equal(t, int64(1), outcome.EventID)
	assert.Equal(t, TransportPolling, outcome.Transport)
}

func TestSender_PollingRejected(t *testing.T) {
	polling := new(fakePolling)
	sender := NewSender(nil, polling, nil, nil, fixedRoom("abcd"))
	polling.On("Submit", "abcd", domain.EventTypeLetter, "a").
		Return(int64(0), &DeliveryRejectedError{StatusCode: 400, Message: "bad"}).Once()

	outcome := sender.SendEvent(context.Background(), domain.EventTypeLetter, "a")

	var rejected *DeliveryRejectedError
	require.True(t, errors.As(outcome.Err, &rejected))
	assert.Equal(t, 400, rejected.StatusCode)
}

func TestSender_SwitchingKeepsPendingAcks(t *testing.T) {
	push := new(fakePush)
	polling := new(fakePolling)
	tracker, _, updates := newTracker()
	sender := NewSender(push, polling, tracker, NewMemoryCounter(), fixedRoom("r"))

	push.On("SendKeystroke", "r", domain.EventTypeLetter, "a", mock.Anything).Return(nil).Once()
	polling.On("Submit", "r", domain.EventTypeLetter, "b").Return(int64(2), nil).Once()

	sender.SendEvent(context.Background(), domain.EventTypeLetter, "a")
	sender.UseTransport(TransportPolling)
	outcome := sender.SendEvent(context.Background(), domain.EventTypeLetter, "b")
	require.NoError(t, outcome.Err)

	assert.Equal(t, 1, tracker.Pending(), "切换通道不取消已有的跟踪")
	push.onExecutionAck(domain.ExecutionAck{RoomCode: "r", ClientEventID: 1, OK: true})
	assert.Equal(t, StateResolvedOK, (*updates)[len(*updates)-1].State)
}

func TestSender_NoRoom(t *testing.T) {
	sender := NewSender(new(fakePush), nil, nil, nil, fixedRoom(""))
	outcome := sender.SendEvent(context.Background(), domain.EventTypeLetter, "a")
	assert.ErrorIs(t, outcome.Err, ErrNoRoom)
}

func TestSender_OnKeystrokeFanOut(t *testing.T) {
	push := new(fakePush)
	sender := NewSender(push, nil, nil, nil, fixedRoom("r"))

	var got []string
	sender.OnKeystroke(func(ks dto.KeystrokeBroadcast) { got = append(got, "first:"+ks.Payload) })
	sender.OnKeystroke(func(ks dto.KeystrokeBroadcast) { got = append(got, "second:"+ks.Payload) })
	push.onKeystroke(dto.KeystrokeBroadcast{Type: domain.EventTypeLetter, Payload: "x"})

	assert.Equal(t, []string{"first:x", "second:x"}, got)
}

func TestSender_UseTransportIgnoresMissing(t *testing.T) {
	sender := NewSender(new(fakePush), nil, nil, nil, fixedRoom("r"))
	sender.UseTransport(TransportPolling)
	assert.Equal(t, TransportPush, sender.Transport())
}
