package checkout

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Form is the customer-supplied shipping and payment data.
type Form struct {
	FirstName  string `json:"fname" validate:"required,notblank"`
	LastName   string `json:"lname" validate:"required,notblank"`
	Email      string `json:"email" validate:"required,email"`
	Street     string `json:"street" validate:"required,notblank"`
	City       string `json:"city" validate:"required,notblank"`
	State      string `json:"state" validate:"required,notblank"`
	Zip        string `json:"zip" validate:"required,notblank"`
	CardNumber string `json:"cardNumber" validate:"required,cardnumber"`
	Expiration string `json:"expiration" validate:"required,mmyy,notexpired"`
	Code       string `json:"code" validate:"required,securitycode"`
}

func (f Form) customer() models.Customer {
	return models.Customer{FirstName: strings.TrimSpace(f.FirstName), LastName: strings.TrimSpace(f.LastName), Email: strings.TrimSpace(f.Email)}
}

func (f Form) address() models.ShippingAddress {
	return models.ShippingAddress{
		Street: strings.TrimSpace(f.Street),
		City:   strings.TrimSpace(f.City),
		State:  strings.TrimSpace(f.State),
		Zip:    strings.TrimSpace(f.Zip),
	}
}

func (f Form) payment() models.PaymentDetails {
	return models.PaymentDetails{
		CardNumber:   strings.ReplaceAll(f.CardNumber, " ", ""),
		Expiration:   f.Expiration,
		SecurityCode: f.Code,
	}
}

// ValidationError lists the form fields that failed, keyed by json name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var (
	cardNumberRe   = regexp.MustCompile(`^\d{16}$`)
	expirationRe   = regexp.MustCompile(`^\d{2}/\d{2}$`)
	securityCodeRe = regexp.MustCompile(`^\d{3,4}$`)
)

var fieldMessages = map[string]string{
	"email":        "Please enter a valid email address",
	"cardnumber":   "Credit card number must be 16 digits",
	"mmyy":         "Expiration date must be in MM/YY format",
	"notexpired":   "Expiration date must be in the future or current month",
	"securitycode": "Security code must be 3 or 4 digits",
}

// NewValidator returns a validator with the payment rules registered. now
// decides which expiration dates count as expired.
func NewValidator(now func() time.Time) *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("cardnumber", func(fl validatorv10.FieldLevel) bool {
		return cardNumberRe.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
	})
	_ = v.RegisterValidation("mmyy", func(fl validatorv10.FieldLevel) bool {
		month, _, ok := parseExpiration(fl.Field().String())
		return ok && month >= 1 && month <= 12
	})
	_ = v.RegisterValidation("notexpired", func(fl validatorv10.FieldLevel) bool {
		month, year, ok := parseExpiration(fl.Field().String())
		if !ok {
			return false
		}
		current := now()
		if year != current.Year() {
			return year > current.Year()
		}
		return time.Month(month) >= current.Month()
	})
	_ = v.RegisterValidation("securitycode", func(fl validatorv10.FieldLevel) bool {
		return securityCodeRe.MatchString(fl.Field().String())
	})

	return v
}

func parseExpiration(s string) (month, year int, ok bool) {
	if !expirationRe.MatchString(s) {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(s[:2])
	yy, _ := strconv.Atoi(s[3:])
	return month, 2000 + yy, true
}

// validateForm runs v over the form and converts failures into a
// *ValidationError with user-facing messages.
func validateForm(v *validatorv10.Validate, f Form) error {
	err := v.Struct(f)
	if err == nil {
		return nil
	}

	ve, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string]string{"form": err.Error()}}
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		msg, known := fieldMessages[fe.Tag()]
		if fe.Tag() == "notblank" {
			msg, known = fe.Field()+" is required", true
		}
		if !known {
			msg = fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
		}
		fields[fe.Field()] = msg
	}
	return &ValidationError{Fields: fields}
}
