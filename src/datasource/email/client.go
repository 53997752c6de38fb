// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"RentalInsight/src/storage"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const (
	MaxFetchMessages   = 100            // 单次最多拉取的邮件数
	FetchBufferSize    = 10             // Fetch通道缓冲
	RecentMailDuration = 24 * time.Hour // 只查看这段时间内的未读邮件
)

// MailService 邮箱操作，测试中可替换
type MailService interface {
	Connect() error
	Disconnect()
	// FetchUnreadEmails 拉取未读邮件，不改变已读状态
	FetchUnreadEmails() ([]*Email, error)
	// MarkSeen 标记已读，之后的FetchUnreadEmails不再返回该邮件
	MarkSeen(uid uint32) error
}

// Email 解码后的邮件
type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

type Attachment struct {
	Filename string
	Content  []byte
}

// EmailClient 基于go-imap的MailService实现
type EmailClient struct {
	server   string // 含端口，如"imap.qq.com:993"
	username string
	password string // 密码或授权码
	logger   *storage.Logger

	mu     sync.Mutex
	client *client.Client
}

func NewEmailClient(server, username, password string, logger *storage.Logger) *EmailClient {
	return &EmailClient{
		server:   server,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Connect 复用仍然可用的连接，否则重新TLS连接并登录
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		s.client.Logout()
		s.client = nil
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("登录失败: %w", err)
	}
	s.client = c
	return nil
}

func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
}

// FetchUnreadEmails 拉取INBOX中RecentMailDuration内的未读邮件
func (s *EmailClient) FetchUnreadEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}
	if _, err := s.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("选择邮箱失败: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-RecentMailDuration)

	ids, err := s.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxFetchMessages {
		ids = ids[:MaxFetchMessages]
	}
	return s.fetchMessages(ids)
}

// MarkSeen 按UID添加\Seen标记
func (s *EmailClient) MarkSeen(uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return fmt.Errorf("未连接到邮件服务器")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("标记已读失败(UID:%d): %w", uid, err)
	}
	return nil
}

func (s *EmailClient) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	// Peek不会隐式设置\Seen，已读标记由CheckAndProcessEmails在处理成功后添加
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			warn(s.logger, "邮件正文为空", zap.Uint32("uid", msg.Uid))
			continue
		}
		email, err := ParseMessage(r, msg.Uid, s.logger)
		if err != nil {
			warn(s.logger, "解析邮件失败", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("获取邮件内容失败: %w", err)
	}
	return emails, nil
}

// ParseMessage 解析一封完整的RFC 5322邮件
// 参数:
//   - r: 原始邮件内容
//   - uid: IMAP UID
//   - logger: 记录被跳过的附件，可为nil
func ParseMessage(r io.Reader, uid uint32, logger *storage.Logger) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}
	defer mr.Close()

	date, _ := mr.Header.Date()
	email := &Email{
		UID:     uid,
		Date:    date,
		From:    decodeHeader(mr.Header.Get("From")),
		Subject: decodeHeader(mr.Header.Get("Subject")),
	}

	parseEmailParts(mr, email, logger)
	return email, nil
}

// parseEmailParts 收集附件；单个部分无法解析时记录并跳过，结构性错误时停止
func parseEmailParts(mr *mail.Reader, email *Email, logger *storage.Logger) {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			fields := []zap.Field{zap.Uint32("uid", email.UID), zap.Error(err)}
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				warn(logger, "跳过无法解码的邮件部分", fields...)
				continue
			}
			warn(logger, "邮件结构损坏，停止解析后续部分", fields...)
			return
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		if err := parseAttachment(h, p.Body, email); err != nil {
			warn(logger, "跳过无法解析的附件", zap.Uint32("uid", email.UID), zap.Error(err))
		}
	}
}

func parseAttachment(h *mail.AttachmentHeader, body io.Reader, email *Email) error {
	filename, err := h.Filename()
	if err != nil || filename == "" {
		return fmt.Errorf("无效的附件名")
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("读取附件%s失败: %w", filename, err)
	}

	email.Attachments = append(email.Attachments, &Attachment{
		Filename: decodeHeader(filename),
		Content:  buf.Bytes(),
	})
	return nil
}

// decodeHeader 解码=?charset?encoding?text?=，失败时原样返回
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader GBK/GB2312转UTF-8，其他编码原样返回
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	default:
		return input, nil
	}
}

// CheckAndProcessEmails 取主题包含keyword的最新未读邮件交给process处理
// process成功后才标记已读，失败的邮件留在未读中，下一轮检查会再次处理
// 参数:
//   - mailService: 邮件服务实例
//   - keyword: 主题关键词
//   - logger: 日志记录器
//   - process: 处理目标邮件
//
// 返回: 目标邮件；没有目标邮件时返回nil, nil
func CheckAndProcessEmails(mailService MailService, keyword string, logger *storage.Logger,
	process func(*Email) error) (*Email, error) {
	startTime := time.Now()
	logger.Info("开始检查邮箱...")

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer mailService.Disconnect()

	emails, err := mailService.FetchUnreadEmails()
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}
	if len(emails) == 0 {
		logger.Info("没有新邮件")
		return nil, nil
	}

	target := filterLatestTargetEmail(emails, keyword)
	if target == nil {
		logger.Info("没有目标邮件", zap.Int("unread", len(emails)))
		return nil, nil
	}
	logger.Info("找到目标邮件", zap.Uint32("uid", target.UID), zap.String("subject", target.Subject))

	if process != nil {
		if err := process(target); err != nil {
			return target, fmt.Errorf("处理邮件失败(UID:%d): %w", target.UID, err)
		}
	}

	if err := mailService.MarkSeen(target.UID); err != nil {
		logger.Warning("标记已读失败", zap.Uint32("uid", target.UID), zap.Error(err))
	}
	logger.Info("邮件处理完成",
		zap.Uint32("uid", target.UID),
		zap.Duration("elapsed", time.Since(startTime)))
	return target, nil
}

// filterLatestTargetEmail 主题包含keyword的邮件中日期最新的一封
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var targets []*Email
	for _, email := range emails {
		if strings.Contains(email.Subject, keyword) {
			targets = append(targets, email)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Date.After(targets[j].Date)
	})
	return targets[0]
}

func warn(logger *storage.Logger, msg string, fields ...zap.Field) {
	if logger != nil {
		logger.Warning(msg, fields...)
	}
}
