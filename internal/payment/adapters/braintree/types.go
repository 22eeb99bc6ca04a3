package braintree

import "encoding/xml"

type xmlBool struct {
	Type  string `xml:"type,attr"`
	Value bool   `xml:",chardata"`
}

type saleRequest struct {
	XMLName            xml.Name    `xml:"transaction"`
	Type               string      `xml:"type"`
	Amount             string      `xml:"amount"`
	OrderID            string      `xml:"order-id,omitempty"`
	PaymentMethodNonce string      `xml:"payment-method-nonce"`
	MerchantAccountID  string      `xml:"merchant-account-id,omitempty"`
	Options            saleOptions `xml:"options"`
}

type saleOptions struct {
	SubmitForSettlement xmlBool `xml:"submit-for-settlement"`
}

type refundRequest struct {
	XMLName xml.Name `xml:"transaction"`
	Amount  string   `xml:"amount"`
	OrderID string   `xml:"order-id,omitempty"`
}

type clientTokenRequest struct {
	XMLName xml.Name `xml:"client-token"`
	Version int      `xml:"version"`
}

type clientTokenResponse struct {
	XMLName xml.Name `xml:"client-token"`
	Value   string   `xml:"value"`
}

type transaction struct {
	XMLName               xml.Name `xml:"transaction"`
	ID                    string   `xml:"id"`
	Type                  string   `xml:"type"`
	Status                string   `xml:"status"`
	Amount                string   `xml:"amount"`
	CurrencyISOCode       string   `xml:"currency-iso-code"`
	OrderID               string   `xml:"order-id"`
	CreatedAt             string   `xml:"created-at"`
	PaymentInstrumentType string   `xml:"payment-instrument-type"`
	ProcessorResponseText string   `xml:"processor-response-text"`
	CreditCard            struct {
		CardType     string `xml:"card-type"`
		Last4        string `xml:"last-4"`
		MaskedNumber string `xml:"masked-number"`
	} `xml:"credit-card"`
	PayPal struct {
		PayerEmail string `xml:"payer-email"`
	} `xml:"paypal"`
}

type apiErrorResponse struct {
	XMLName     xml.Name     `xml:"api-error-response"`
	Message     string       `xml:"message"`
	Transaction *transaction `xml:"transaction"`
}

type address struct {
	FirstName         string `xml:"first-name"`
	LastName          string `xml:"last-name"`
	StreetAddress     string `xml:"street-address"`
	ExtendedAddress   string `xml:"extended-address"`
	Locality          string `xml:"locality"`
	Region            string `xml:"region"`
	PostalCode        string `xml:"postal-code"`
	CountryCodeAlpha2 string `xml:"country-code-alpha2"`
}

// paymentMethod matches any vaulted method root (credit-card, paypal-account, ...).
type paymentMethod struct {
	XMLName        xml.Name
	Token          string   `xml:"token"`
	BillingAddress *address `xml:"billing-address"`
}

type searchIs struct {
	Is string `xml:"is"`
}

type searchRange struct {
	Type string `xml:"type,attr,omitempty"`
	Min  string `xml:"min"`
}

type searchRequest struct {
	XMLName   xml.Name     `xml:"search"`
	OrderID   searchIs     `xml:"order-id"`
	CreatedAt *searchRange `xml:"created-at,omitempty"`
}

type searchResponse struct {
	XMLName      xml.Name      `xml:"credit-card-transactions"`
	Transactions []transaction `xml:"transaction"`
}
