package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client reads source frames from one bucket and writes redacted frames to
// another.
type Client struct {
	client       *minio.Client
	framesBucket string
	outputBucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, framesBucket, outputBucket string) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{
		client:       client,
		framesBucket: framesBucket,
		outputBucket: outputBucket,
	}, nil
}

func (c *Client) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
	}
	return nil
}

// ListFrames возвращает ключи кадров в папке сценария в порядке номеров кадров
func (c *Client) ListFrames(ctx context.Context, prefix string) ([]string, error) {
	objectCh := c.client.ListObjects(ctx, c.framesBucket, minio.ListObjectsOptions{
		Prefix:    FolderPrefix(prefix),
		Recursive: true,
	})

	var keys []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}

		// Пропускаем саму папку
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		keys = append(keys, object.Key)
	}

	SortFrameKeys(keys)
	return keys, nil
}

func (c *Client) GetFrame(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.framesBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// PutFrame сохраняет обработанный кадр в выходной бакет
func (c *Client) PutFrame(ctx context.Context, key string, data []byte) error {
	if err := c.EnsureBucketExists(ctx, c.outputBucket); err != nil {
		return fmt.Errorf("bucket error: %w", err)
	}

	_, err := c.client.PutObject(
		ctx,
		c.outputBucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "image/jpeg",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to save frame %s: %w", key, err)
	}
	return nil
}

// FolderPrefix normalises a scenario folder so listing "abc" never matches "abcd/".
func FolderPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// OutputKey maps a source frame key to its key in the output bucket.
func OutputKey(prefix, key string) string {
	name := strings.TrimSuffix(path.Base(key), path.Ext(key)) + ".jpg"
	return FolderPrefix(prefix) + name
}

// SortFrameKeys orders keys so that digit runs compare by value:
// frame_2.jpg sorts before frame_10.jpg.
func SortFrameKeys(keys []string) {
	slices.SortStableFunc(keys, compareNatural)
}

func compareNatural(a, b string) int {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			if c := compareNumber(na, nb); c != 0 {
				return c
			}
			a, b = restA, restB
		case a[0] != b[0]:
			return strings.Compare(a[:1], b[:1])
		default:
			a, b = a[1:], b[1:]
		}
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareNumber compares two digit runs by value without parsing them, so
// long runs cannot overflow.
func compareNumber(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
