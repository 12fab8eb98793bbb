// "Тупой" клиент объектного хранилища вложений.
//
// S3 API простой и стандартизованный, SDK-обвязка не нужна:
// список, скачивание, подготовка data-uri для vision запросов.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// ClientInterface определяет интерфейс для S3 клиента.
// Используется для мокания в тестах.
type ClientInterface interface {
	ListFiles(ctx context.Context, prefix string) ([]StoredObject, error)
	DownloadFile(ctx context.Context, key string) ([]byte, error)
}

// Client — клиент вложений поверх minio.
type Client struct {
	api    *minio.Client
	bucket string
}

var _ ClientInterface = (*Client)(nil)

// StoredObject — сырой объект из S3.
type StoredObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// New создает клиент из конфигурации.
func New(cfg config.S3Config) (*Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		api:    minioClient,
		bucket: cfg.Bucket,
	}, nil
}

// ListFiles возвращает все файлы по префиксу (папке диалога).
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]StoredObject, error) {
	if !strings.HasSuffix(prefix, "/") && prefix != "" {
		prefix += "/"
	}

	var files []StoredObject
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}

	for obj := range c.api.ListObjects(ctx, c.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue // папки не интересны
		}
		files = append(files, StoredObject{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	return files, nil
}

// DownloadFile скачивает объект целиком в память.
func (c *Client) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s': %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// UploadFile загружает вложение в бакет.
func (c *Client) UploadFile(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload object '%s': %w", key, err)
	}
	return nil
}

// AttachmentDataURI скачивает изображение, ужимает его до maxWidth
// и возвращает base64 data-uri для vision запроса.
//
// Ужатие обязательно: вендоры ограничивают размер image parts,
// а телефонные фото легко уходят за лимит.
func (c *Client) AttachmentDataURI(ctx context.Context, key string, maxWidth int, quality int) (string, error) {
	raw, err := c.DownloadFile(ctx, key)
	if err != nil {
		return "", err
	}

	resized, err := utils.ResizeImage(raw, maxWidth, quality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare attachment '%s': %w", key, err)
	}

	utils.Debug("Attachment prepared for vision",
		"key", key,
		"original_bytes", len(raw),
		"resized_bytes", len(resized))

	return utils.ImageDataURI(resized), nil
}
