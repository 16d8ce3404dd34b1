package domain

import (
	"time"
)

// Customer is one community member tracked for welcome-video purposes,
// scoped to the creator it joined under.
type Customer struct {
	ID            string  `json:"id" gorm:"type:uuid;primary_key"`
	CreatorID     string  `json:"creator_id" gorm:"type:uuid;not null;uniqueIndex:uni_customers_creator_user,priority:1"`
	WhopUserID    string  `json:"whop_user_id" gorm:"type:varchar(255);not null;uniqueIndex:uni_customers_creator_user,priority:2"`
	WhopMemberID  string  `json:"whop_member_id" gorm:"type:varchar(255);not null"`
	WhopCompanyID *string `json:"whop_company_id" gorm:"type:varchar(255)"`

	Name     string  `json:"name" gorm:"type:varchar(255);not null"`
	Email    *string `json:"email" gorm:"type:varchar(255)"`
	Username *string `json:"username" gorm:"type:varchar(255)"`
	PlanName *string `json:"plan_name" gorm:"type:varchar(255)"`

	JoinedAt       time.Time `json:"joined_at"`
	FirstVideoSent bool      `json:"first_video_sent" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for Customer.
func (Customer) TableName() string {
	return "customers"
}

// CreateCustomerRequest carries the join-time profile snapshot.
type CreateCustomerRequest struct {
	CreatorID     string    `json:"creator_id" validate:"required"`
	WhopUserID    string    `json:"whop_user_id" validate:"required"`
	WhopMemberID  string    `json:"whop_member_id" validate:"required"`
	WhopCompanyID *string   `json:"whop_company_id,omitempty"`
	Name          string    `json:"name" validate:"required"`
	Email         *string   `json:"email,omitempty"`
	Username      *string   `json:"username,omitempty"`
	PlanName      *string   `json:"plan_name,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// UpdateCustomerRequest is a partial update; nil pointers leave fields untouched.
type UpdateCustomerRequest struct {
	WhopCompanyID  *string `json:"whop_company_id,omitempty"`
	FirstVideoSent *bool   `json:"first_video_sent,omitempty"`
}
