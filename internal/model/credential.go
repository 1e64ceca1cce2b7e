package model

import "time"

// Credential 完成证书，签发后不可修改；姓名和标题为签发时快照
// swagger:model Credential
type Credential struct {
	AppendOnlyModel
	UserID           uint      `gorm:"not null;uniqueIndex:idx_credential_user_track" json:"userId"`
	TrackID          uint      `gorm:"not null;uniqueIndex:idx_credential_user_track" json:"trackId"`
	RecipientName    string    `gorm:"size:100;not null" json:"recipientName"`
	TrackTitle       string    `gorm:"size:255;not null" json:"trackTitle"`
	VerificationHash string    `gorm:"size:64;not null;uniqueIndex" json:"verificationHash"`
	CompletionDate   time.Time `gorm:"not null" json:"completionDate"`
	IssuedAt         time.Time `gorm:"not null" json:"issuedAt"`
}

func (Credential) TableName() string {
	return "credentials"
}

type CredentialTaskStatus string

const (
	TaskPending CredentialTaskStatus = "pending"
	TaskDone    CredentialTaskStatus = "done"
)

// CredentialTask 证书签发/渲染的发件箱记录，与进度在同一事务写入
// swagger:model CredentialTask
type CredentialTask struct {
	ID            uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint                 `gorm:"not null;uniqueIndex:idx_task_user_track" json:"userId"`
	TrackID       uint                 `gorm:"not null;uniqueIndex:idx_task_user_track" json:"trackId"`
	CompletedAt   time.Time            `gorm:"not null" json:"completedAt"`
	CredentialID  *uint                `json:"credentialId"`
	Status        CredentialTaskStatus `gorm:"size:20;not null;default:'pending';index:idx_task_status_next" json:"status"`
	Attempts      int                  `gorm:"not null;default:0" json:"attempts"`
	LastError     string               `gorm:"type:text" json:"lastError,omitempty"`
	NextAttemptAt time.Time            `gorm:"not null;index:idx_task_status_next" json:"nextAttemptAt"`
	ArtifactURL   string               `gorm:"size:512" json:"artifactUrl,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func (CredentialTask) TableName() string {
	return "credential_tasks"
}
