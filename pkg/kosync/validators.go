package kosync

type RegisterPayload struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
}

// ProgressPayload is a position push from a device. Percentage is a pointer
// so that 0 is distinguishable from absent.
type ProgressPayload struct {
	Document   string   `json:"document" validate:"required"`
	Progress   string   `json:"progress" validate:"required"`
	Percentage *float64 `json:"percentage" validate:"required,min=0,max=1"`
	Device     string   `json:"device" validate:"required"`
	DeviceID   string   `json:"device_id" validate:"required"`
}

type RegisterResponse struct {
	Username string `json:"username"`
}

type AuthorizeResponse struct {
	Authorized string `json:"authorized"`
}
