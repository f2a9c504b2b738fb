package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	flashCookie    = "flash_msg"
	flashSeparator = "|"
	flashMaxAge    = 10
)

// Flash - сообщение, переживающее один редирект.
type Flash struct {
	Type    string `json:"t"` // success, error, info
	Message string `json:"m"`
}

func (f *Flash) IsError() bool {
	return f != nil && f.Type == "error"
}

// SetFlash кладет подписанное сообщение в cookie.
func (a *Authenticator) SetFlash(c *gin.Context, kind, message string) {
	data, err := json.Marshal(Flash{Type: kind, Message: message})
	if err != nil {
		return
	}
	value := base64.URLEncoding.EncodeToString(data) + flashSeparator + base64.URLEncoding.EncodeToString(a.sign(data))
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     flashCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash читает сообщение и сразу удаляет cookie. Поддельная подпись дает nil.
func (a *Authenticator) PopFlash(c *gin.Context) *Flash {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	http.SetCookie(c.Writer, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	f, err := a.decodeFlash(raw)
	if err != nil {
		a.logger.Debug("Dropping flash cookie", zap.Error(err))
		return nil
	}
	return f
}

func (a *Authenticator) decodeFlash(raw string) (*Flash, error) {
	encodedData, encodedSig, ok := strings.Cut(raw, flashSeparator)
	if !ok {
		return nil, errors.New("invalid flash cookie format")
	}
	data, err := base64.URLEncoding.DecodeString(encodedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flash data: %w", err)
	}
	sig, err := base64.URLEncoding.DecodeString(encodedSig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flash signature: %w", err)
	}
	if !hmac.Equal(sig, a.sign(data)) {
		return nil, errors.New("invalid flash cookie signature")
	}
	var f Flash
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flash message: %w", err)
	}
	return &f, nil
}

func (a *Authenticator) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(data)
	return mac.Sum(nil)
}
