package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// MyClaims はJWTクレームの構造体定義です。
type MyClaims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	jwt.StandardClaims
}

// Identity はクレームから接続用の身元情報を取り出します。
func (c *MyClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, DisplayName: c.DisplayName}
}
