package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GoogleAccountMarker Google 登录自动创建的账号没有本地密码
const GoogleAccountMarker = "__GOOGLE__"

// HashPassword bcrypt 哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("密码哈希失败: %w", err)
	}
	return string(hash), nil
}

// CheckPassword 校验密码
func CheckPassword(hash, password string) bool {
	if hash == "" || hash == GoogleAccountMarker {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
