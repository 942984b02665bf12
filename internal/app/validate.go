package app

import "strings"

// ValidationError is a form problem caught before any request is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// RegistrationForm is the two-step sign-up form.
type RegistrationForm struct {
	Name            string
	Phone           string
	Email           string
	City            string
	State           string
	Password        string
	ConfirmPassword string
}

// ValidateStep1 checks the identity step.
func (f RegistrationForm) ValidateStep1() error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Phone) == "" {
		return invalid("Full Name and Phone Number are required.")
	}
	if len(f.Phone) < 10 {
		return invalid("Please enter a valid mobile number.")
	}
	return nil
}

// ValidateStep2 checks the location and password step.
func (f RegistrationForm) ValidateStep2() error {
	if strings.TrimSpace(f.City) == "" || strings.TrimSpace(f.State) == "" || f.Password == "" {
		return invalid("All fields in step 2 are required.")
	}
	if len(f.Password) < 6 {
		return invalid("Password must be at least 6 characters.")
	}
	if f.Password != f.ConfirmPassword {
		return invalid("Passwords do not match.")
	}
	return nil
}

// Validate runs both steps in order.
func (f RegistrationForm) Validate() error {
	if err := f.ValidateStep1(); err != nil {
		return err
	}
	return f.ValidateStep2()
}

func validateLogin(identifier, password string) error {
	if identifier == "" || password == "" {
		return invalid("Please enter your credentials.")
	}
	return nil
}
