package utils

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/crypto/bcrypt"
)

// 邀请码长度，nanoid 字母表 64 个字符，21 位约 126 bit 熵
const InvitationTokenLength = 21

const maxDisplayNameLen = 64

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

	tokenOnce sync.Once
	tokenGen  func() string
)

// HashPassword 使用 bcrypt 对房间密码进行哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword 验证房间密码
func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// NormalizeDisplayName 去除首尾空白，要求非空、不超过 64 个字符且不含控制字符
func NormalizeDisplayName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || !utf8.ValidString(name) || utf8.RuneCountInString(name) > maxDisplayNameLen {
		return "", false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	return name, true
}

// ValidateContact 邀请目标：邮箱或 E.164 手机号
func ValidateContact(contact string) bool {
	return emailPattern.MatchString(contact) || phonePattern.MatchString(contact)
}

// GenerateInvitationToken 基于 crypto/rand 生成 URL 安全的邀请码
func GenerateInvitationToken() string {
	tokenOnce.Do(func() {
		gen, err := nanoid.Standard(InvitationTokenLength)
		if err != nil {
			// 长度在 2..255 之外才会失败
			panic(err)
		}
		tokenGen = gen
	})
	return tokenGen()
}
