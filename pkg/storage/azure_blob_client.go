package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ContentTypeJSONLines is the content type of uploaded record batches
const ContentTypeJSONLines = "application/x-ndjson"

// BlobStorageClient stores record batches produced by a runner
type BlobStorageClient interface {
	Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error)
	Download(ctx context.Context, reference string) ([]byte, error)
}

// AzureBlobClient implements BlobStorageClient for Azure Blob Storage using
// shared keys. An http:// BlobEndpoint (Azurite) is accepted.
type AzureBlobClient struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	logger        *zap.Logger

	mu            sync.Mutex
	containerInit bool
}

var _ BlobStorageClient = (*AzureBlobClient)(nil)

// NewAzureBlobClient creates a new Azure Blob storage client from a standard connection string.
func NewAzureBlobClient(connectionString, containerName string, logger *zap.Logger) (*AzureBlobClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required: %w", sdkerrors.ErrInvalidConfig)
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required: %w", sdkerrors.ErrInvalidConfig)
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string: %w", sdkerrors.ErrInvalidConfig)
	}
	if serviceURL == "" {
		suffix := params["EndpointSuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		protocol := params["DefaultEndpointsProtocol"]
		if protocol == "" {
			protocol = "https"
		}
		serviceURL = fmt.Sprintf("%s://%s.blob.%s", protocol, accountName, suffix)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobClient{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		logger:        logger,
	}, nil
}

// Upload writes data to blobPath in the configured container and returns the blob URL.
func (a *AzureBlobClient) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	metadataPtr := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		metadataPtr[k] = to.Ptr(v)
	}

	containerClient := a.client.ServiceClient().NewContainerClient(a.containerName)
	blobClient := containerClient.NewBlockBlobClient(blobPath)

	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: metadataPtr,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(ContentTypeJSONLines),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload to blob storage",
			zap.String("blob_path", blobPath),
			zap.Int("size", len(data)),
			zap.Error(err))
		return "", fmt.Errorf("blob upload %s: %v: %w", blobPath, err, sdkerrors.ErrUploadFailed)
	}

	a.logger.Debug("Uploaded blob",
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))

	return blobClient.URL(), nil
}

// Download returns the contents of a blob given its URL or container-relative path.
func (a *AzureBlobClient) Download(ctx context.Context, reference string) ([]byte, error) {
	blobPath, err := a.extractBlobPath(reference)
	if err != nil {
		return nil, err
	}

	containerClient := a.client.ServiceClient().NewContainerClient(a.containerName)
	blobClient := containerClient.NewBlobClient(blobPath)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}
	return data, nil
}

func (a *AzureBlobClient) ensureContainer(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil && !containerExists(err) {
		return fmt.Errorf("failed to ensure container: %w", err)
	}

	a.containerInit = true
	return nil
}

func containerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.ErrorCode == "ContainerAlreadyExists" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "containeralreadyexists")
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}

func (a *AzureBlobClient) extractBlobPath(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", fmt.Errorf("blob reference is required")
	}

	if strings.HasPrefix(strings.ToLower(ref), strings.ToLower(a.serviceURL)) {
		ref = ref[len(a.serviceURL):]
	}
	if idx := strings.Index(ref, "?"); idx != -1 {
		ref = ref[:idx]
	}

	if decoded, err := url.PathUnescape(ref); err == nil && decoded != "" {
		ref = decoded
	}
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
	}

	ref = strings.TrimPrefix(ref, "/")
	ref = strings.TrimPrefix(ref, a.containerName+"/")

	if ref == "" {
		return "", fmt.Errorf("blob path is empty")
	}
	return ref, nil
}
