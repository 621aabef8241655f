package appointmenttest

import "errors"

// errNegativeBalance stands in for the patients.balance CHECK constraint.
var errNegativeBalance = errors.New("patients.balance must not be negative")
