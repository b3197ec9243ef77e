package billing

import "testing"

func TestExtractSubscriptionID_FromSubscriptionEvent(t *testing.T) {
	payload := []byte(`{"id":"sub_123","status":"active","metadata":{"tenant_id":"7"}}`)
	if got := extractSubscriptionID(EventSubscriptionCreated, payload); got != "sub_123" {
		t.Errorf("got %q, want sub_123", got)
	}
}

func TestExtractSubscriptionID_FromInvoiceEvent(t *testing.T) {
	payload := []byte(`{"subscription":"sub_456","customer":"cus_1"}`)
	if got := extractSubscriptionID(EventInvoicePaymentFailed, payload); got != "sub_456" {
		t.Errorf("got %q, want sub_456", got)
	}
}

func TestExtractSubscriptionID_UnknownEventType(t *testing.T) {
	if got := extractSubscriptionID("some.other.event", []byte(`{}`)); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}
