package main

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/example/foodtracker/internal/blob"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	maxUploadSize = 10 << 20
	blobURLTTL    = time.Hour
)

// blobExt returns the lower-cased extension of filename, "jpg" when it has
// none or it is not purely alphanumeric.
func blobExt(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" || len(ext) > 10 {
		return "jpg"
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return "jpg"
		}
	}
	return ext
}

// ownedBlob returns the path blob name if it lives under the caller's
// prefix, writing a 403 otherwise.
func ownedBlob(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := mux.Vars(r)["name"]
	if !strings.HasPrefix(name, subjectOf(r)+"/") || strings.Contains(name, "..") {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Access to this image is not allowed")
		return "", false
	}
	return name, true
}

func (a *App) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File must be at most 10 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected multipart form with a file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "INVALID_FILE_TYPE", "File must be an image")
		return
	}
	if header.Size > maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File must be at most 10 MiB")
		return
	}

	name := fmt.Sprintf("%s/%s.%s", subjectOf(r), uuid.NewString(), blobExt(header.Filename))
	if err := a.Blobs.Put(r.Context(), name, contentType, file, header.Size); err != nil {
		a.Logger.ErrorContext(r.Context(), "upload failed", "blob", name, "error", err)
		writeInternal(w, "Failed to upload image")
		return
	}
	url, err := a.Blobs.URL(r.Context(), name, blobURLTTL)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "presign failed", "blob", name, "error", err)
		writeInternal(w, "Failed to upload image")
		return
	}
	writeMessage(w, http.StatusOK, map[string]interface{}{
		"blob_name":    name,
		"url":          url,
		"content_type": contentType,
		"size":         header.Size,
	}, "Image uploaded successfully")
}

func (a *App) HandleDownload(w http.ResponseWriter, r *http.Request) {
	name, ok := ownedBlob(w, r)
	if !ok {
		return
	}
	if _, err := a.Blobs.Stat(r.Context(), name); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found")
			return
		}
		writeInternal(w, "Failed to download image")
		return
	}
	url, err := a.Blobs.URL(r.Context(), name, blobURLTTL)
	if err != nil {
		writeInternal(w, "Failed to download image")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"url": url, "blob_name": name})
}

func (a *App) HandleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	name, ok := ownedBlob(w, r)
	if !ok {
		return
	}
	if err := a.Blobs.Delete(r.Context(), name); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found")
			return
		}
		a.Logger.ErrorContext(r.Context(), "delete blob failed", "blob", name, "error", err)
		writeInternal(w, "Failed to delete image")
		return
	}
	writeMessage(w, http.StatusOK, nil, "Image deleted successfully")
}

type blobView struct {
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

func (a *App) HandleListBlobs(w http.ResponseWriter, r *http.Request) {
	objects, err := a.Blobs.List(r.Context(), subjectOf(r)+"/")
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "list blobs failed", "error", err)
		writeInternal(w, "Failed to list images")
		return
	}
	out := make([]blobView, 0, len(objects))
	for _, o := range objects {
		url, err := a.Blobs.URL(r.Context(), o.Name, blobURLTTL)
		if err != nil {
			writeInternal(w, "Failed to list images")
			return
		}
		out = append(out, blobView{Name: o.Name, URL: url, Size: o.Size, Created: o.LastModified})
	}
	writeMessage(w, http.StatusOK, out, fmt.Sprintf("Found %d images", len(out)))
}
