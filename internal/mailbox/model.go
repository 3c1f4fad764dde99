// Package mailbox mirrors the configured IMAP inbox into a local read cache.
package mailbox

import "time"

// CachedEmail is one message copied from the remote INBOX.
type CachedEmail struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	MessageID    string    `gorm:"column:message_id;size:512;not null;uniqueIndex" json:"message_id"`
	Subject      string    `gorm:"column:subject;size:998" json:"subject"`
	Sender       string    `gorm:"column:sender;size:512" json:"sender"`
	Recipient    string    `gorm:"column:recipient;size:512" json:"recipient"`
	BodyPlain    string    `gorm:"column:body_plain;type:text" json:"body_plain"`
	BodyHTML     string    `gorm:"column:body_html;type:text" json:"body_html"`
	ReceivedDate time.Time `gorm:"column:received_date;not null;index" json:"received_date"`
	IsRead       bool      `gorm:"column:is_read;not null;index" json:"is_read"`
	Folder       string    `gorm:"column:folder;size:255;not null" json:"folder"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (CachedEmail) TableName() string {
	return "cached_emails"
}

// Models lists the persistent types of this package for schema migration.
func Models() []any {
	return []any{&CachedEmail{}}
}
