package storage

import (
	"errors"
)

var (
	// ErrObjectNotFound は指定したキーのオブジェクトが存在しない場合のエラー
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey はバケット名またはキーが不正な場合のエラー
	ErrInvalidKey = errors.New("invalid bucket or key")
)
