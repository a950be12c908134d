package store

import "errors"

// 存储层统一的错误口径，上层用 errors.Is 判断后翻译成对外错误
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateCode    = errors.New("short code already exists")
	ErrUnauthorized     = errors.New("requester does not own the record")
	ErrExpired          = errors.New("record has expired")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsNotFound 判断是否为未找到
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicateCode 判断是否为短码冲突
func IsDuplicateCode(err error) bool { return errors.Is(err, ErrDuplicateCode) }

// IsUnauthorized 判断是否为越权访问
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsExpired 判断是否为已过期
func IsExpired(err error) bool { return errors.Is(err, ErrExpired) }
