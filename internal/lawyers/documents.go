package lawyers

import (
	"errors"
	"mime"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

// @Summary      Upload credential documents (PDF/PNG)
// @Description  Lawyer uploads up to 10 files reviewed during verification
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        files  formData  []file  true  "PDF/PNG (max 10)"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/me/documents [post]
func (h *Handler) UploadDocuments(c *fiber.Ctx) error {
	p, err := h.mustOwnProfile(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files[]")
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "files are required (use key: files[])")
	}
	if len(files) > 10 {
		return fiber.NewError(fiber.StatusBadRequest, "max 10 files allowed")
	}

	results := make([]fiber.Map, 0, len(files))

	for _, fh := range files {
		res := fiber.Map{
			"name": fh.Filename,
			"size": fh.Size,
		}

		if fh.Size <= 0 {
			res["error"] = "empty file"
			results = append(results, res)
			continue
		}
		if fh.Size > 10*1024*1024 {
			res["error"] = "max 10MB per file"
			results = append(results, res)
			continue
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		switch ct {
		case "application/pdf", "image/png":
			// ok
		default:
			res["error"] = "only PDF or PNG are allowed"
			results = append(results, res)
			continue
		}

		f, err := fh.Open()
		if err != nil {
			res["error"] = "open failed"
			results = append(results, res)
			continue
		}
		defer f.Close()

		key := h.sb.MakeObjectKey(p.ID.String(), fh.Filename)

		if err := h.sb.Upload(c.Context(), key, f, ct); err != nil {
			res["error"] = "upload failed"
			results = append(results, res)
			continue
		}

		rec := models.LawyerDocument{
			LawyerID:     p.ID,
			Key:          key,
			Mime:         ct,
			Size:         int(fh.Size),
			OriginalName: fh.Filename,
		}
		if err := h.db.Create(&rec).Error; err != nil {
			res["error"] = "database error"
			results = append(results, res)
			continue
		}

		res["id"] = rec.ID
		res["key"] = rec.Key
		results = append(results, res)
	}

	// 201 even with partial failures; callers check the per-item "error".
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fiber.Map{"results": results}})
}

// @Summary      Delete own credential document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/me/documents/{id} [delete]
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	p, err := h.mustOwnProfile(c)
	if err != nil {
		return err
	}

	var doc models.LawyerDocument
	if err := h.db.First(&doc, "id = ? AND lawyer_id = ?", c.Params("id"), p.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	// Object first, row second. Delete treats missing objects as success.
	if err := h.sb.Delete(c.Context(), doc.Key); err != nil {
		return fiber.ErrInternalServerError
	}
	if err := h.db.Delete(&doc).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"deleted": true}})
}

// @Summary      Signed document URL (admin)
// @Description  Short-lived signed URL for a credential document under review
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/documents/{id}/signed-url [get]
func (h *Handler) SignedDocumentURL(c *fiber.Ctx) error {
	var doc models.LawyerDocument
	if err := h.db.First(&doc, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	url, err := h.sb.SignedURL(c.Context(), doc.Key, time.Minute)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"url": url, "expires_in": 60, "now": time.Now().UTC(),
	}})
}
