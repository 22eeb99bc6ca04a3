package stripe

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Charge  string `json:"charge"`
	} `json:"error"`
}

type cardDetails struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type charge struct {
	ID             string         `json:"id"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	Paid           bool           `json:"paid"`
	Captured       bool           `json:"captured"`
	FailureMessage string         `json:"failure_message"`
	Metadata       map[string]any `json:"metadata"`
	Source         *cardDetails   `json:"source,omitempty"`
	PaymentMethod  *struct {
		Card *cardDetails `json:"card"`
	} `json:"payment_method_details,omitempty"`
}

func (c charge) card() *cardDetails {
	if c.PaymentMethod != nil && c.PaymentMethod.Card != nil {
		return c.PaymentMethod.Card
	}
	return c.Source
}

type chargeSearch struct {
	Data []charge `json:"data"`
}

type refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Charge        string `json:"charge"`
	FailureReason string `json:"failure_reason"`
}

type token struct {
	ID   string `json:"id"`
	Card *struct {
		Name           string `json:"name"`
		AddressLine1   string `json:"address_line1"`
		AddressLine2   string `json:"address_line2"`
		AddressCity    string `json:"address_city"`
		AddressZip     string `json:"address_zip"`
		AddressState   string `json:"address_state"`
		AddressCountry string `json:"address_country"`
	} `json:"card"`
}
