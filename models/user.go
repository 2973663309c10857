package models

type UserAccount struct {
	JsonModel
	Name        string       `json:"name"`
	Email       string       `json:"email" gorm:"uniqueIndex;not null"`
	Password    string       `json:"-" gorm:"not null"`
	LastIp      string       `json:"-"`
	Generations []Generation `json:"-" gorm:"foreignKey:UserAccountID"`
}

func (u UserAccount) Out() UserOut {
	return UserOut{ID: u.ID, Email: u.Email, Name: u.Name}
}
