package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", NewClock(9, 0), false},
		{"17:30", NewClock(17, 30), false},
		{"09:00:00", NewClock(9, 0), false},
		{"09:00:30", 0, true},
		{"9am", 0, true},
		{"25:00", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClock_Display(t *testing.T) {
	if got := NewClock(14, 5).Display(); got != "2:05 PM" {
		t.Errorf("unexpected display %q", got)
	}
	if got := NewClock(0, 0).String(); got != "00:00" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2024, 2, 28)
	if got := d.AddDays(1); got != NewDate(2024, 2, 29) {
		t.Errorf("leap day: got %s", got)
	}
	if got := d.AddDays(2); got != NewDate(2024, 3, 1) {
		t.Errorf("month rollover: got %s", got)
	}
	if !d.Before(d.AddDays(1)) || d.After(d) {
		t.Error("comparison is wrong")
	}
	if NewDate(2025, 6, 9).Weekday() != time.Monday {
		t.Error("2025-06-09 is a Monday")
	}

	var parsed Date
	if err := parsed.UnmarshalText([]byte("2025-12-25")); err != nil || parsed != NewDate(2025, 12, 25) {
		t.Errorf("unmarshal: %v %s", err, parsed)
	}
	if _, err := ParseDate("25/12/2025"); err == nil {
		t.Error("expected an error for a non ISO date")
	}
}

func TestAt_UsesClinicLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	got := At(NewDate(2025, 6, 10), NewClock(9, 0), loc)
	if want := time.Date(2025, 6, 10, 6, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got.UTC())
	}
}

func TestProvider_Slots(t *testing.T) {
	p := Provider{
		SlotMinutes: 45,
		Hours:       []WorkingHours{{Weekday: time.Monday, Open: NewClock(9, 0), Close: NewClock(12, 0)}},
	}
	monday := NewDate(2025, 6, 9)

	slots := p.SlotsOn(monday)
	// 11:15 ends exactly at close.
	want := []Clock{NewClock(9, 0), NewClock(9, 45), NewClock(10, 30), NewClock(11, 15)}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, slots)
		}
	}
	if p.SlotsOn(monday.AddDays(1)) != nil {
		t.Error("no hours on tuesday")
	}

	if in, aligned := p.Aligned(monday, NewClock(11, 30)); in {
		t.Errorf("11:30 ends after close, got in=%v aligned=%v", in, aligned)
	}
	if in, aligned := p.Aligned(monday, NewClock(10, 0)); !in || aligned {
		t.Errorf("10:00 is inside but misaligned, got in=%v aligned=%v", in, aligned)
	}
}

func TestHoliday_Matches(t *testing.T) {
	p := Provider{}
	other := NewDate(2030, 12, 25)

	recurring := Holiday{Date: NewDate(2024, 12, 25), Recurring: true}
	if !recurring.Matches(other, p.ID) {
		t.Error("recurring holiday should match any year")
	}
	once := Holiday{Date: NewDate(2024, 12, 25)}
	if once.Matches(other, p.ID) {
		t.Error("one-off holiday should only match its year")
	}
}

func TestSummarize(t *testing.T) {
	final := decimal.NewFromInt(25)
	settled, short := uuid.New(), uuid.New()
	appts := []Appointment{
		{ID: settled, Status: StatusDone, PaymentStatus: PaymentPaid, Price: decimal.NewFromInt(40), FinalPrice: &final},
		{ID: short, Status: StatusScheduled, PaymentStatus: PaymentPaid, Price: decimal.NewFromInt(40)},
		{Status: StatusScheduled, PaymentStatus: PaymentUnpaid, Price: decimal.NewFromInt(40)},
		{Status: StatusCancelled, PaymentStatus: PaymentUnpaid, Price: decimal.NewFromInt(40)},
		{Status: StatusNoShow, PaymentStatus: PaymentUnpaid, Price: decimal.NewFromInt(30)},
	}
	collected := map[uuid.UUID]decimal.Decimal{
		settled: decimal.NewFromInt(35), // 10 went to the wallet
		short:   decimal.NewFromInt(15),
	}
	sum := summarize(appts, collected, decimal.NewFromInt(50))

	if !sum.TotalPaid.Equal(decimal.NewFromInt(40)) {
		t.Errorf("paid counts what was collected up to the final price, got %s", sum.TotalPaid)
	}
	if !sum.TotalUnpaid.Equal(decimal.NewFromInt(95)) {
		t.Errorf("cancelled rows are not owed and shortfalls are, got %s", sum.TotalUnpaid)
	}
	if !sum.RemainingBalance.Equal(decimal.NewFromInt(45)) {
		t.Errorf("expected 45 remaining, got %s", sum.RemainingBalance)
	}
}

func TestNormalizePhone(t *testing.T) {
	for in, want := range map[string]string{
		"+90 (532) 111-22-33": "905321112233",
		"0532 111 22 33":      "05321112233",
		"":                    "",
		"n/a":                 "",
	} {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
