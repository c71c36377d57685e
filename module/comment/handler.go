package comment

import (
	"net/http"

	"collabcore/global"
	"collabcore/middleware/security"
	"collabcore/service/collab"

	"github.com/gin-gonic/gin"
)

// HandlerListThread 线程拉取：打开面板时全量取，之后靠房间广播
// 增量更新。GET /comments?room=dashboard:42
func HandlerListThread(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := security.ParseIdentity(security.TokenFromRequest(c), global.GetJwtSecret()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		roomID, err := collab.ParseRoomID(c.Query("room"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad room"})
			return
		}
		rt, rid := roomID.Resource()
		threads, err := store.ListThread(c.Request.Context(), rt, rid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"threads": threads})
	}
}
