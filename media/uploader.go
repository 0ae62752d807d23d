// Package media stores user-supplied media (voice notes, chat photos) and hands back a URL.
package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const (
	VoiceFolder = "motion_voice_notes"
	PhotoFolder = "motion_chat_photos"
)

type Uploader interface {
	Upload(ctx context.Context, r io.Reader, filename string) (string, error)
}

// UploadSignature lets a client upload a photo straight to Cloudinary.
type UploadSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
	Folder    string `json:"folder"`
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	secret string
	folder string
}

func NewCloudinaryUploader(cloudinaryURL, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	parsed, err := url.Parse(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CLOUDINARY_URL: %w", err)
	}
	secret, _ := parsed.User.Password()
	return &CloudinaryUploader{cld: cld, secret: secret, folder: folder}, nil
}

// Upload stores audio. Cloudinary files audio under the video resource type.
func (u *CloudinaryUploader) Upload(ctx context.Context, r io.Reader, filename string) (string, error) {
	resp, err := u.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       u.folder,
		ResourceType: "video",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload of %s failed: %w", filename, err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload of %s failed: %s", filename, resp.Error.Message)
	}
	return resp.SecureURL, nil
}

func (u *CloudinaryUploader) SignPhotoUpload() (*UploadSignature, error) {
	params, err := api.StructToParams(uploader.UploadParams{Folder: PhotoFolder})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare signature params: %w", err)
	}
	timestamp := time.Now().Unix()
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))

	signature, err := api.SignParameters(params, u.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload params: %w", err)
	}
	return &UploadSignature{
		Signature: signature,
		Timestamp: timestamp,
		APIKey:    u.cld.Config.Cloud.APIKey,
		CloudName: u.cld.Config.Cloud.CloudName,
		Folder:    PhotoFolder,
	}, nil
}
