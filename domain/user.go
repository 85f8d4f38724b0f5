package domain

type User struct {
	ID        int64  `json:"user_id" db:"user_id"`
	Username  string `json:"username" db:"username"`
	Email     string `json:"email" db:"email"`
	Role      string `json:"role" db:"role"`
	CreatedAt string `json:"created_at,omitempty" db:"created_at"`
}

type Customer struct {
	ID        int64  `json:"customer_id" db:"customer_id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
	CreatedAt string `json:"created_at,omitempty" db:"created_at"`
}
