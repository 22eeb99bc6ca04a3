package adyen

type amount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}

type paymentRequest struct {
	Amount             amount         `json:"amount"`
	Reference          string         `json:"reference"`
	MerchantAccount    string         `json:"merchantAccount"`
	PaymentMethod      map[string]any `json:"paymentMethod"`
	ShopperInteraction string         `json:"shopperInteraction,omitempty"`
	CaptureDelayHours  *int           `json:"captureDelayHours,omitempty"`
}

type paymentResponse struct {
	PSPReference   string            `json:"pspReference"`
	ResultCode     string            `json:"resultCode"`
	RefusalReason  string            `json:"refusalReason"`
	Amount         *amount           `json:"amount,omitempty"`
	AdditionalData map[string]string `json:"additionalData"`
	PaymentMethod  *struct {
		Brand string `json:"brand"`
		Type  string `json:"type"`
	} `json:"paymentMethod,omitempty"`
}

func (p paymentResponse) brand() string {
	if p.PaymentMethod != nil && p.PaymentMethod.Brand != "" {
		return p.PaymentMethod.Brand
	}
	return p.AdditionalData["paymentMethod"]
}

type refundRequest struct {
	Amount          amount `json:"amount"`
	MerchantAccount string `json:"merchantAccount"`
	Reference       string `json:"reference"`
}

type refundResponse struct {
	PSPReference        string `json:"pspReference"`
	PaymentPSPReference string `json:"paymentPspReference"`
	Status              string `json:"status"`
}

type apiError struct {
	Status    int    `json:"status"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
}
