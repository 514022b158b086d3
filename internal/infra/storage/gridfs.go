package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// GridFSStore は MongoDB GridFS をオブジェクトストレージとして使う
// バケット名は GridFS バケット名、キーはファイル名に対応し、同名ファイルは最新リビジョンを読む
type GridFSStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectGridFS は MongoDB に接続して GridFSStore を作成する
func ConnectGridFS(ctx context.Context, uri, database string) (*GridFSStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &GridFSStore{
		client: client,
		db:     client.Database(database),
	}, nil
}

var _ ingestion.ObjectStore = (*GridFSStore)(nil)

// Close は接続を閉じる
func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Get はファイルの最新リビジョンを読み込む
func (s *GridFSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	stream, err := b.OpenDownloadStreamByName(key)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Put はファイルの新しいリビジョンを書き込む
func (s *GridFSStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return err
	}

	if _, err := b.UploadFromStream(key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// bucket は ctx の期限を読み書きの期限に反映したバケットを返す
func (s *GridFSStore) bucket(ctx context.Context, name string) (*gridfs.Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty bucket", ErrInvalidKey)
	}

	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket %s: %w", name, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := b.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		if err := b.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
	}
	return b, nil
}
