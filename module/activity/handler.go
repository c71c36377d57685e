package activity

import (
	"net/http"

	"collabcore/global"
	"collabcore/middleware/security"

	"github.com/gin-gonic/gin"
)

// 离线收件人的拉取入口：重连后从持久层补通知。

func HandlerListNotifications(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := security.ParseIdentity(security.TokenFromRequest(c), global.GetJwtSecret())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		notifs, err := store.ListNotifications(c.Request.Context(), ident.UserID, 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
			return
		}
		unread, _ := store.UnreadCount(c.Request.Context(), ident.UserID)
		c.JSON(http.StatusOK, gin.H{"notifications": notifs, "unread": unread})
	}
}

func HandlerMarkRead(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := security.ParseIdentity(security.TokenFromRequest(c), global.GetJwtSecret())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err := store.MarkRead(c.Request.Context(), c.Param("id"), ident.UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
