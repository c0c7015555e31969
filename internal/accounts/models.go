package accounts

import "time"

type Account struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:150;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Email        string     `gorm:"size:254;not null" json:"email"`
	FirstName    string     `gorm:"size:30;not null" json:"first_name"`
	LastName     string     `gorm:"size:30;not null" json:"last_name"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	IsStaff      bool       `gorm:"not null" json:"is_staff"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Profile extends exactly one Account and is deleted with it.
type Profile struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	AccountID      string    `gorm:"not null;uniqueIndex" json:"account_id"`
	ProfilePicture string    `gorm:"size:255" json:"profile_picture"`
	IsDoctor       bool      `gorm:"not null" json:"is_doctor"`
	AddressLine1   string    `gorm:"column:address_line1;size:255;not null" json:"address_line1"`
	City           string    `gorm:"size:100;not null" json:"city"`
	State          string    `gorm:"size:100;not null" json:"state"`
	Pincode        string    `gorm:"size:100;not null" json:"pincode"`
	CreatedAt      time.Time `json:"created_at"`

	Account Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Account) TableName() string { return "app_auth.accounts" }
func (Profile) TableName() string { return "app_auth.profiles" }

func (a Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// RoleOf maps the profile flag onto exactly one role.
func RoleOf(p Profile) Role {
	if p.IsDoctor {
		return RoleDoctor
	}
	return RolePatient
}

// Dashboard is what the dashboard page renders for one account.
type Dashboard struct {
	Account    Account
	Profile    Profile
	Role       Role
	PictureURL string
}
