package settings

import (
	"slices"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// singletonID addresses the only row of each settings kind.
const singletonID uint = 1

// Category groups notifications a Telegram recipient can subscribe to.
type Category string

const (
	CategoryInquiries Category = "anfragen"
	CategoryOrders    Category = "bestellungen"
)

// Categories lists every notification category.
func Categories() []Category {
	return []Category{CategoryInquiries, CategoryOrders}
}

func (c Category) valid() bool {
	return c == CategoryInquiries || c == CategoryOrders
}

// PhoneSetting is the phone number shown in the site header.
type PhoneSetting struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	PhoneNumber string    `gorm:"column:phone_number;size:50;not null" json:"phone_number"`
	DisplayText string    `gorm:"column:display_text;size:100" json:"display_text"`
	TelLink     string    `gorm:"column:tel_link;size:64" json:"tel_link"`
	IsActive    bool      `gorm:"column:is_active;not null" json:"is_active"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName binds PhoneSetting to its table.
func (PhoneSetting) TableName() string { return "phone_settings" }

// Label returns the display text, falling back to the number.
func (p PhoneSetting) Label() string {
	if strings.TrimSpace(p.DisplayText) != "" {
		return p.DisplayText
	}
	return p.PhoneNumber
}

// EmailSettings configures the transactional email provider.
type EmailSettings struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	SenderName  string    `gorm:"column:sender_name;size:100" json:"sender_name"`
	SenderEmail string    `gorm:"column:sender_email;size:254;not null" json:"sender_email"`
	APIKey      string    `gorm:"column:api_key;size:255;not null" json:"api_key"`
	NotifyEmail string    `gorm:"column:notify_email;size:254" json:"notify_email"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName binds EmailSettings to its table.
func (EmailSettings) TableName() string { return "email_settings" }

// Complete reports whether mail can be sent with these settings.
func (e EmailSettings) Complete() bool {
	return strings.TrimSpace(e.SenderEmail) != "" && strings.TrimSpace(e.APIKey) != ""
}

// Masked hides the API key.
func (e EmailSettings) Masked() EmailSettings {
	e.APIKey = MaskSecret(e.APIKey)
	return e
}

// TelegramSettings configures the Telegram bot.
type TelegramSettings struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	BotToken  string    `gorm:"column:bot_token;size:255;not null" json:"bot_token"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"is_active"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName binds TelegramSettings to its table.
func (TelegramSettings) TableName() string { return "telegram_settings" }

// Usable reports whether the bot is active and has a token.
func (t TelegramSettings) Usable() bool {
	return t.IsActive && strings.TrimSpace(t.BotToken) != ""
}

// Masked hides the bot token.
func (t TelegramSettings) Masked() TelegramSettings {
	t.BotToken = MaskSecret(t.BotToken)
	return t
}

// ImapSettings configures the mailbox connection.
type ImapSettings struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	Host      string    `gorm:"column:host;size:255;not null" json:"host"`
	Port      int       `gorm:"column:port;not null" json:"port"`
	Username  string    `gorm:"column:username;size:255;not null" json:"username"`
	Password  string    `gorm:"column:password;size:255;not null" json:"password"`
	UseTLS    bool      `gorm:"column:use_tls;not null" json:"use_tls"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"is_active"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName binds ImapSettings to its table.
func (ImapSettings) TableName() string { return "imap_settings" }

// Usable reports whether the mailbox is active and fully specified.
func (i ImapSettings) Usable() bool {
	return i.IsActive && strings.TrimSpace(i.Host) != "" && i.Port > 0 &&
		strings.TrimSpace(i.Username) != "" && i.Password != ""
}

// Masked hides the password.
func (i ImapSettings) Masked() ImapSettings {
	i.Password = MaskSecret(i.Password)
	return i
}

// TelegramChat is one Telegram notification recipient.
type TelegramChat struct {
	ID                string                      `gorm:"column:id;primaryKey;size:64" json:"id"`
	ChatID            string                      `gorm:"column:chat_id;size:64;not null" json:"chat_id"`
	ChatName          string                      `gorm:"column:chat_name;size:100" json:"chat_name"`
	IsActive          bool                        `gorm:"column:is_active;not null;index" json:"is_active"`
	NotificationTypes datatypes.JSONSlice[string] `gorm:"column:notification_types" json:"notification_types"`
	CreatedAt         time.Time                   `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName binds TelegramChat to its table.
func (TelegramChat) TableName() string { return "telegram_chat_ids" }

// Wants reports whether the recipient subscribed to the category.
func (c TelegramChat) Wants(category Category) bool {
	return slices.Contains([]string(c.NotificationTypes), string(category))
}

// Models lists every persisted type owned by this package.
func Models() []any {
	return []any{&PhoneSetting{}, &EmailSettings{}, &TelegramSettings{}, &ImapSettings{}, &TelegramChat{}}
}

// MaskSecret keeps the last four characters of long secrets and hides everything else.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return "********" + secret[len(secret)-4:]
}
