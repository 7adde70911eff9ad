package domain

import "time"

type Patient struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ElabItemID int64     `json:"elab_item_id"` // zero until the upstream item exists
	CreatedAt  time.Time `json:"created_at"`
}

func (p *Patient) Registered() bool {
	return p != nil && p.ElabItemID > 0
}
