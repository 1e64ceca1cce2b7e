package model

const SourceUnitCompletion = "unit-completion"

// XPLedgerEntry 经验值流水，只追加；(user_id, source_kind, source_id) 唯一
// swagger:model XPLedgerEntry
type XPLedgerEntry struct {
	AppendOnlyModel
	UserID     uint   `gorm:"not null;uniqueIndex:idx_xp_user_source" json:"userId"`
	SourceKind string `gorm:"size:50;not null;uniqueIndex:idx_xp_user_source" json:"sourceKind"`
	SourceID   uint   `gorm:"not null;uniqueIndex:idx_xp_user_source" json:"sourceId"`
	Amount     int    `gorm:"not null" json:"amount"`
}

func (XPLedgerEntry) TableName() string {
	return "xp_ledger_entries"
}
