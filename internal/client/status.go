package client

import "github.com/sirupsen/logrus"

// StatusRenderer 展示连接和确认状态
type StatusRenderer interface {
	RenderStatus(status string)
}

// StatusFunc 把函数适配为 StatusRenderer
type StatusFunc func(string)

func (f StatusFunc) RenderStatus(status string) { f(status) }

// LogRenderer 把状态写到日志
type LogRenderer struct {
	Entry *logrus.Entry
}

func (r LogRenderer) RenderStatus(status string) {
	entry := r.Entry
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	entry.Info(status)
}
