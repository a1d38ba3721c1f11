package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/mpmux/internal/app"
	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/logger"
	"github.com/John-Robertt/mpmux/internal/motion"
	"github.com/John-Robertt/mpmux/internal/scan"
)

// ErrCodeUploadTooLarge 表示请求体超过 MaxUploadBytes。
const ErrCodeUploadTooLarge = "upload_too_large"

const defaultMaxUploadBytes = 64 << 20

// ErrorResponse 是所有失败响应的 JSON 结构。
type ErrorResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type Handler struct {
	log       logger.Logger
	maxUpload int64
	version   string
}

func NewHandler(log logger.Logger, opts Options) *Handler {
	max := opts.MaxUploadBytes
	if max <= 0 {
		max = defaultMaxUploadBytes
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{log: log, maxUpload: max, version: version}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": h.version,
	})
}

// Mux 接收 multipart 的 image_file + video_file（可选 strict=true），返回合成后的 JPEG。
func (h *Handler) Mux(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}

	imageData, imageName, ok := h.readPart(c, "image_file", domain.KindImage)
	if !ok {
		return
	}
	videoData, _, ok := h.readPart(c, "video_file", domain.KindVideo)
	if !ok {
		return
	}

	strict, _ := strconv.ParseBool(c.PostForm("strict"))
	res, err := motion.MuxWithOptions(imageData, videoData, motion.Options{Strict: strict})
	if err != nil {
		h.log.Warnf("合成失败 %s：%v", imageName, err)
		fail(c, http.StatusUnprocessableEntity, app.ErrorCode(err), err.Error())
		return
	}

	h.log.Debugf("已合成 %s：video_offset=%d removed=%d size=%d", imageName, res.VideoOffset, res.Removed, len(res.Data))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": imageName}))
	c.Header(HeaderVideoOffset, strconv.FormatInt(res.VideoOffset, 10))
	c.Data(http.StatusOK, "image/jpeg", res.Data)
}

// Inspect 接收 multipart 的 file，返回其段结构与动态照片描述。
func (h *Handler) Inspect(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}

	data, _, ok := h.readPart(c, "file", domain.KindImage)
	if !ok {
		return
	}

	info, err := motion.Inspect(data)
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, app.ErrorCode(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) parseForm(c *gin.Context) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeUploadTooLarge, fmt.Sprintf("请求体超过 %d 字节上限", mbe.Limit))
			return false
		}
		fail(c, http.StatusBadRequest, domain.ErrCodeMissingInput, fmt.Sprintf("无法解析表单：%v", err))
		return false
	}
	return true
}

// readPart 读取一个上传文件，并按扩展名校验它的角色。
func (h *Handler) readPart(c *gin.Context, field string, want domain.MediaKind) ([]byte, string, bool) {
	f, header, err := c.Request.FormFile(field)
	if err != nil {
		fail(c, http.StatusBadRequest, domain.ErrCodeMissingInput, fmt.Sprintf("缺少文件字段 %s", field))
		return nil, "", false
	}
	defer f.Close()

	name := filepath.Base(header.Filename)
	if scan.KindOf(filepath.Ext(name)) != want {
		fail(c, http.StatusBadRequest, domain.ErrCodeUnsupportedExtension, fmt.Sprintf("%s 的扩展名不受支持：%q", field, name))
		return nil, "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusInternalServerError, domain.ErrCodeIOFailed, fmt.Sprintf("读取 %s 失败：%v", field, err))
		return nil, "", false
	}
	return data, name, true
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success:   false,
		ErrorCode: code,
		Message:   msg,
	})
}
