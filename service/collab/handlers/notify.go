package handlers

import (
	"collabcore/module/activity"
	"collabcore/service/collab"
)

// NewDeliver 把通知扇出接到枢纽的用户直投上：NOTIFICATION 走
// 定向消息，不进房间广播。离线用户投不到也无所谓——重连后从
// 持久层拉。
func NewDeliver(srv *collab.Server) activity.Deliver {
	return func(recipientID string, n activity.Notification) {
		srv.SendToUser(recipientID, collab.NewEnvelope(collab.MsgNotification, "", "", n))
	}
}
