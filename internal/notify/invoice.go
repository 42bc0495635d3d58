package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

var rupiahPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah renders an amount with Indonesian digit grouping, e.g. Rp500.000.
func FormatRupiah(amount int64) string {
	return rupiahPrinter.Sprintf("Rp%d", amount)
}

type invoiceLine struct {
	Name      string
	Size      string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

type invoiceData struct {
	StoreName   string
	OrderNumber string
	Customer    string
	Lines       []invoiceLine
	Total       int64
	Courier     string
	Waybill     string
	TrackingURL string
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"rupiah": FormatRupiah,
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{.StoreName}}</h2>
  <p>Halo {{.Customer}}, terima kasih! Pembayaran pesanan <strong>{{.OrderNumber}}</strong> sudah kami terima.</p>
  <table cellpadding="6" cellspacing="0" border="1" style="border-collapse: collapse;">
    <thead>
      <tr><th>Produk</th><th>Ukuran</th><th>Qty</th><th>Harga</th><th>Subtotal</th></tr>
    </thead>
    <tbody>
      {{- range .Lines}}
      <tr><td>{{.Name}}</td><td>{{.Size}}</td><td>{{.Quantity}}</td><td>{{rupiah .UnitPrice}}</td><td>{{rupiah .Subtotal}}</td></tr>
      {{- end}}
    </tbody>
    <tfoot>
      <tr><td colspan="4"><strong>Total</strong></td><td><strong>{{rupiah .Total}}</strong></td></tr>
    </tfoot>
  </table>
  {{- if .Waybill}}
  <p>Pesanan dikirim dengan {{.Courier}}, nomor resi <strong>{{.Waybill}}</strong>.
  {{- if .TrackingURL}} <a href="{{.TrackingURL}}">Lacak paket</a>{{end}}</p>
  {{- else}}
  <p>Pesanan sedang dikemas. Nomor resi akan dikirim setelah paket diserahkan ke kurir.</p>
  {{- end}}
</body>
</html>
`))

func newInvoiceData(storeName string, order *domain.Order, sub *domain.CheckoutSubmission) invoiceData {
	data := invoiceData{
		StoreName:   storeName,
		OrderNumber: order.OrderNumber,
		Customer:    order.ShippingAddress.Name,
		Total:       order.TotalAmount,
	}
	if data.Customer == "" && sub != nil && sub.ShippingAddress != nil {
		data.Customer = sub.ShippingAddress.Name
	}

	for _, item := range order.Items {
		qty := max(1, item.Quantity)
		data.Lines = append(data.Lines, invoiceLine{
			Name:      item.ProductName,
			Size:      item.Size,
			Quantity:  qty,
			UnitPrice: item.Price,
			Subtotal:  item.Price * int64(qty),
		})
	}

	if resi := order.Resi(); resi != "" && resi != domain.ShippingResiPending {
		data.Waybill = resi
	}
	if meta := order.ShippingAddress.Biteship; meta != nil {
		if data.Waybill == "" {
			data.Waybill = meta.Waybill
		}
		data.Courier = strings.TrimSpace(strings.ToUpper(meta.CourierCode) + " " + strings.ToUpper(meta.CourierService))
		data.TrackingURL = meta.TrackingURL
	}

	return data
}

func renderInvoice(data invoiceData) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	return buf.String(), nil
}

func invoiceSubject(storeName, orderNumber string) string {
	return fmt.Sprintf("Invoice %s - %s", orderNumber, storeName)
}
