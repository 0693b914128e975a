package model

const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

type Doctor struct {
	ID        string
	Name      string
	Email     string
	Specialty string // references AppointmentOption.Name
}
