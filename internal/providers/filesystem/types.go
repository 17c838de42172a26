package filesystem

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
)

// TimeLayout renders lastModified. Times are always converted to UTC.
const TimeLayout = "2006-01-02 15:04:05"

// FileInfo describes a regular file.
type FileInfo struct {
	Name         string `json:"name"`
	FullPath     string `json:"fullPath"`
	LastModified string `json:"lastModified"`
	Size         int64  `json:"size"`
	Extension    string `json:"extension"`
	ReadableSize string `json:"readableSize"`
	IsDirectory  bool   `json:"isDirectory"`
}

// FolderInfo describes a directory with its aggregate size.
type FolderInfo struct {
	Name         string `json:"name"`
	FullPath     string `json:"fullPath"`
	LastModified string `json:"lastModified"`
	Size         int64  `json:"size"`
	ReadableSize string `json:"readableSize"`
	ItemCount    int    `json:"itemCount"`
	IsDirectory  bool   `json:"isDirectory"`
}

// Entry is either a *FileInfo or a *FolderInfo.
type Entry interface {
	entryName() string
	entryPath() string
	entrySize() int64
	isDir() bool
}

func (f *FileInfo) entryName() string { return f.Name }
func (f *FileInfo) entryPath() string { return f.FullPath }
func (f *FileInfo) entrySize() int64  { return f.Size }
func (f *FileInfo) isDir() bool       { return false }

func (f *FolderInfo) entryName() string { return f.Name }
func (f *FolderInfo) entryPath() string { return f.FullPath }
func (f *FolderInfo) entrySize() int64  { return f.Size }
func (f *FolderInfo) isDir() bool       { return true }

// Page reports the window applied to a paginated listing.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// FileSystemResponse is one snapshot of a directory listing.
type FileSystemResponse struct {
	Path         string                  `json:"path"`
	ParentPath   *string                 `json:"parentPath"`
	Files        []*FileInfo             `json:"files"`
	Folders      []*FolderInfo           `json:"folders"`
	TotalFiles   int                     `json:"totalFiles"`
	TotalFolders int                     `json:"totalFolders"`
	TotalSize    string                  `json:"totalSize"`
	Permissions  permissions.Permissions `json:"permissions"`
	Page         *Page                   `json:"page,omitempty"`
}

// OperationResult is returned by every mutating operation.
type OperationResult struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	File          *FileInfo   `json:"file,omitempty"`
	Folder        *FolderInfo `json:"folder,omitempty"`
	Errors        []string    `json:"errors"`
	ErrorKind     Kind        `json:"errorKind,omitempty"`
	FailedEntries []string    `json:"failedEntries,omitempty"`
	TrashID       string      `json:"trashId,omitempty"`
}

// Success builds a successful result.
func Success(message string) *OperationResult {
	return &OperationResult{Success: true, Message: message, Errors: []string{}}
}

// Failure builds a failed result from err.
func Failure(err error) *OperationResult {
	res := &OperationResult{Success: false, Message: err.Error(), Errors: []string{}, ErrorKind: KindOf(err)}
	var e *Error
	if errors.As(err, &e) {
		res.Message = e.Message
		if len(e.Details) > 0 {
			res.Errors = append(res.Errors, e.Details...)
		} else {
			res.Errors = append(res.Errors, e.Message)
		}
		res.FailedEntries = e.Entries
	}
	return res
}

// CreateFolderRequest creates FolderName inside Path.
type CreateFolderRequest struct {
	Path       string `json:"path"`
	FolderName string `json:"folderName" binding:"required"`
}

// DeleteRequest removes Path.
type DeleteRequest struct {
	Path string `json:"path" binding:"required"`
}

// DownloadRequest streams Path. Format selects the archive encoding for
// directories and is ignored for files.
type DownloadRequest struct {
	Path   string
	Format ArchiveFormat
}

// ListRequest selects and filters the entries returned by Service.List.
type ListRequest struct {
	Path      string
	Query     string
	Glob      string
	Recursive bool
	Offset    int
	Limit     int
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
