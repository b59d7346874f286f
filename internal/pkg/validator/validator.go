package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/travo/travo-api/internal/events"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Message channel validation
	validate.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		channel := fl.Field().String()
		return channel == "sms" || channel == "email"
	})

	// Webhook event name validation
	validate.RegisterValidation("webhook_event", func(fl validator.FieldLevel) bool {
		return events.Valid(fl.Field().String())
	})

	// Loose E.164 phone validation: + followed by 7-15 digits
	validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		phone := fl.Field().String()
		if !strings.HasPrefix(phone, "+") {
			return false
		}
		digits := phone[1:]
		if len(digits) < 7 || len(digits) > 15 {
			return false
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "url":
			errors[field] = "Invalid URL"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "channel":
			errors[field] = "Channel must be sms or email"
		case "webhook_event":
			errors[field] = "Unknown event name"
		case "phone":
			errors[field] = "Phone must be in international format, e.g. +15551234567"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
