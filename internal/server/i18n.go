package server

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var (
	supportedLanguages = []language.Tag{language.English, language.Arabic}
	languageMatcher    = language.NewMatcher(supportedLanguages)
	errorCatalog       = newErrorCatalog()
)

// errorMessages holds the user-facing text per error code: English, Arabic.
var errorMessages = map[string][2]string{
	"invalid_request":           {"The request is invalid.", "الطلب غير صالح."},
	"validation_error":          {"The request is invalid.", "الطلب غير صالح."},
	"unsupported_country":       {"This country is not supported.", "هذه الدولة غير مدعومة."},
	"unsupported_currency":      {"This currency is not supported.", "هذه العملة غير مدعومة."},
	"currency_mismatch":         {"The currency does not match the country.", "العملة لا تطابق الدولة."},
	"invalid_amount":            {"The amount must be greater than zero.", "يجب أن يكون المبلغ أكبر من صفر."},
	"invalid_price":             {"The price must be greater than zero.", "يجب أن يكون السعر أكبر من صفر."},
	"invalid_tax_rate":          {"The tax rate must be between 0 and 100.", "يجب أن تكون نسبة الضريبة بين 0 و 100."},
	"invalid_plan_order":        {"The plan order is invalid.", "ترتيب الخطط غير صالح."},
	"invalid_review_action":     {"The review action is invalid.", "إجراء المراجعة غير صالح."},
	"invalid_payment_reference": {"A payment reference is required.", "مرجع الدفع مطلوب."},
	"unauthorized":              {"Authentication is required.", "المصادقة مطلوبة."},
	"invalid_actor":             {"Authentication is required.", "المصادقة مطلوبة."},
	"forbidden":                 {"You do not have permission to perform this action.", "ليس لديك صلاحية لتنفيذ هذا الإجراء."},
	"not_found":                 {"The requested resource was not found.", "المورد المطلوب غير موجود."},
	"plan_not_found":            {"The plan was not found.", "الخطة غير موجودة."},
	"invoice_not_found":         {"The invoice was not found.", "الفاتورة غير موجودة."},
	"workflow_not_found":        {"The listing workflow was not found.", "سير عمل الإعلان غير موجود."},
	"tax_rule_not_found":        {"No tax rule exists for this country.", "لا توجد قاعدة ضريبية لهذه الدولة."},
	"conflict":                  {"The request conflicts with the current state.", "الطلب يتعارض مع الحالة الحالية."},
	"workflow_already_exists":   {"A workflow already exists for this property.", "يوجد سير عمل لهذا العقار بالفعل."},
	"invalid_transition":        {"This status change is not allowed.", "تغيير الحالة هذا غير مسموح."},
	"concurrent_update":         {"The record was changed by another request. Please retry.", "تم تعديل السجل بواسطة طلب آخر. يرجى إعادة المحاولة."},
	"invoice_not_payable":       {"The invoice cannot be paid in its current state.", "لا يمكن دفع الفاتورة في حالتها الحالية."},
	"invoice_number_conflict":   {"Could not allocate an invoice number. Please retry.", "تعذر تخصيص رقم الفاتورة. يرجى إعادة المحاولة."},
	"invoice_already_linked":    {"An invoice is already linked to this workflow.", "توجد فاتورة مرتبطة بسير العمل هذا بالفعل."},
	"workflow_invoice_required": {"Generate an invoice for this listing first.", "يجب إصدار فاتورة لهذا الإعلان أولاً."},
	"workflow_invoice_unpaid":   {"The listing invoice has not been paid.", "لم يتم دفع فاتورة الإعلان بعد."},
	"rate_limited":              {"Too many requests. Please slow down.", "طلبات كثيرة جداً. يرجى التمهل."},
	"upstream_unavailable":      {"Exchange rates are temporarily unavailable.", "أسعار الصرف غير متاحة مؤقتاً."},
	"rate_unavailable":          {"No exchange rate is available for this currency.", "لا يتوفر سعر صرف لهذه العملة."},
	"internal_error":            {"Something went wrong. Please try again later.", "حدث خطأ ما. يرجى المحاولة لاحقاً."},
}

func newErrorCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, text := range errorMessages {
		_ = b.SetString(language.English, code, text[0])
		_ = b.SetString(language.Arabic, code, text[1])
	}
	return b
}

// negotiateLanguage picks the best supported language for an Accept-Language header.
func negotiateLanguage(header string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, index, confidence := languageMatcher.Match(tags...)
	if confidence == language.No {
		return language.English
	}
	return supportedLanguages[index]
}

func localizedMessage(tag language.Tag, code string) (string, bool) {
	if _, ok := errorMessages[code]; !ok {
		return "", false
	}
	printer := message.NewPrinter(tag, message.Catalog(errorCatalog))
	return printer.Sprintf(code), true
}

func localizePayload(payload errorPayload, acceptLanguage string) errorPayload {
	tag := negotiateLanguage(acceptLanguage)
	if msg, ok := localizedMessage(tag, payload.Code); ok {
		payload.Message = msg
	} else if msg, ok := localizedMessage(tag, payload.Type); ok {
		payload.Message = msg
	}
	return payload
}
