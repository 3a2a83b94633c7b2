package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"khawawish/catalog"
	"khawawish/game/actions"
	"khawawish/models"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrSize = 256

// LobbyHandler はロビー一覧、画像抽選、招待QRコードのHTTP窓口です。
type LobbyHandler struct {
	Hub       *actions.Hub
	Catalog   *catalog.Catalog
	PublicURL string
	Logger    *zap.Logger
}

// ListLobbies は公開ロビーの一覧を返します。
func (h *LobbyHandler) ListLobbies(c *gin.Context) {
	lobbies := h.Hub.PublicLobbies()
	c.JSON(http.StatusOK, gin.H{"lobbies": lobbies, "count": len(lobbies)})
}

// Images はシードから決定的に選んだ画像IDを返します。
// 同じseedとmax_imagesなら常に同じ結果になる。
func (h *LobbyHandler) Images(c *gin.Context) {
	seed := c.Query("seed")
	if seed == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seed is required"})
		return
	}
	maxImages := models.DefaultMaxCharacters
	if v := c.Query("max_images"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_images must be a positive integer"})
			return
		}
		maxImages = min(n, models.MaxMaxCharacters)
	}

	images := h.Catalog.Sample(seed, maxImages)
	c.JSON(http.StatusOK, gin.H{"images": images, "seed": seed, "count": len(images)})
}

// InviteURL はロビーへの招待リンク
func (h *LobbyHandler) InviteURL(lobbyID string) string {
	return strings.TrimRight(h.PublicURL, "/") + "/rooms?lobby=" + url.QueryEscape(lobbyID)
}

// LobbyQR は招待リンクのQRコードをPNGで返します。
func (h *LobbyHandler) LobbyQR(c *gin.Context) {
	lobbyID := c.Param("lobbyID")
	if _, ok := h.Hub.Lobby(lobbyID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lobby not found"})
		return
	}

	png, err := qrcode.Encode(h.InviteURL(lobbyID), qrcode.Medium, qrSize)
	if err != nil {
		h.Logger.Error("QR code generation failed", zap.String("lobbyID", lobbyID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
