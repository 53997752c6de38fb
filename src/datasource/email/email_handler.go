// email_handler.go
package email

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"RentalInsight/src/datasource/file"
	"RentalInsight/src/storage"

	"go.uber.org/zap"
)

// ====================== 邮件处理器实现 ======================

var ErrNoDataAttachment = errors.New("邮件中没有csv/xlsx附件")

// AttachmentHandler 保存目标邮件中的原始数据附件
type AttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	SheetName     string          // xlsx附件的工作表，为空时取第一个
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewAttachmentHandler(subject, dataDir, sheetName string) *AttachmentHandler {
	return &AttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		SheetName:     sheetName,
		processedUIDs: make(map[uint32]bool), // 初始化映射
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *AttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// MarkProcessed 附件清洗成功后调用，之后Handle跳过该邮件（线程安全）
func (h *AttachmentHandler) MarkProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 处理单个邮件
// 第一个能解析为数据表的csv/xlsx附件被保存到DataDir
// 返回: 保存路径；已处理或主题不匹配时返回空字符串
// 只保存附件，处理成功后由调用方MarkProcessed
func (h *AttachmentHandler) Handle(email *Email, logger *storage.Logger) (string, error) {
	// 检查是否已处理过该邮件
	if h.IsProcessed(email.UID) {
		return "", nil
	}

	// 检查邮件主题是否包含目标关键词
	if !strings.Contains(email.Subject, h.TargetSubject) {
		logger.Info("跳过主题不匹配的邮件", zap.String("subject", email.Subject))
		return "", nil
	}

	logger.Info("处理邮件",
		zap.String("subject", email.Subject),
		zap.String("from", email.From),
		zap.Time("date", email.Date))

	for _, attachment := range email.Attachments {
		if err := h.validate(attachment); err != nil {
			logger.Warning("跳过附件", zap.String("filename", attachment.Filename), zap.Error(err))
			continue
		}

		// 确保保存目录存在
		if err := os.MkdirAll(h.DataDir, 0755); err != nil {
			return "", fmt.Errorf("创建目录失败: %w", err)
		}

		// 只取文件名，避免附件名中的路径
		filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))
		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return "", fmt.Errorf("保存附件失败: %w", err)
		}

		logger.Info("附件已保存", zap.String("path", filePath))
		return filePath, nil
	}

	return "", fmt.Errorf("%w(UID:%d)", ErrNoDataAttachment, email.UID)
}

// validate 只接受能被读取为数据表的附件
func (h *AttachmentHandler) validate(a *Attachment) error {
	switch strings.ToLower(filepath.Ext(a.Filename)) {
	case ".csv":
		_, err := file.ParseCSV(bytes.NewReader(a.Content))
		return err
	case ".xlsx":
		_, err := file.ParseXLSX(a.Content, h.SheetName)
		return err
	default:
		return fmt.Errorf("不支持的附件类型")
	}
}
