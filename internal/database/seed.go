package database

import (
	"context"
	"fmt"
	"time"

	"github.com/vincentbai/lynk-embed/internal/models"
)

// DemoAcademyID is the academy seeded by SeedDemo.
const DemoAcademyID = "demo-academy-123"

func demoConfig() models.EmbedConfig {
	return models.EmbedConfig{
		Academy: models.Academy{
			ID:           DemoAcademyID,
			Name:         "Elite Tennis Academy",
			Slug:         "elite-tennis",
			PrimaryColor: "#3b6eff",
			ContactEmail: "contact@elitetennis.com",
			ContactPhone: "+91 98765 43210",
			Website:      "https://elitetennis.com",
			Timezone:     "Asia/Kolkata",
			Currency:     "INR",
		},
		Button: &models.ButtonSettings{
			Type:             "both",
			ButtonText:       "Get in Touch",
			ModalTitle:       "Book with Us",
			SuccessMessage:   "Thank you! We will contact you shortly.",
			DefaultTab:       "batches",
			ShowPrices:       true,
			ShowAvailability: true,
			RequirePhone:     true,
			RequireEmail:     true,
		},
		Pixel: &models.PixelSettings{
			GoogleAdsID:       "AW-123456789",
			GoogleAnalyticsID: "G-XXXXXXXXXX",
			FacebookPixelID:   "1234567890",
			ConsentRequired:   true,
			ConsentMessage:    "We use cookies to improve your experience and track conversions.",
		},
	}
}

func demoBatches() []CatalogBatch {
	return []CatalogBatch{
		{Batch: models.Batch{ID: "batch-1", Name: "Beginner Tennis (Age 6-10)", Description: "Perfect for kids starting their tennis journey",
			Schedule: "Mon, Wed, Fri • 4:00 PM - 5:30 PM", Price: 2999, Currency: "INR", CoachName: "Coach Rahul", VenueName: "Court A - Indoor"},
			Capacity: 12, Enrolled: 8, AllowEmbedBooking: true},
		{Batch: models.Batch{ID: "batch-2", Name: "Intermediate Tennis (Age 10-14)", Description: "For players with basic skills looking to improve",
			Schedule: "Tue, Thu, Sat • 5:00 PM - 6:30 PM", Price: 3499, Currency: "INR", CoachName: "Coach Priya", VenueName: "Court B - Outdoor"},
			Capacity: 10, Enrolled: 9, AllowEmbedBooking: true},
		{Batch: models.Batch{ID: "batch-3", Name: "Weekend Intensive Camp", Description: "Intensive training over weekends",
			Schedule: "Sat, Sun • 9:00 AM - 12:00 PM", Price: 4999, Currency: "INR", CoachName: "Coach Rahul & Priya", VenueName: "Main Court"},
			Capacity: 15, Enrolled: 12, AllowEmbedBooking: false},
		{Batch: models.Batch{ID: "batch-4", Name: "Advanced Competition Training", Description: "For tournament players",
			Schedule: "Mon-Fri • 6:00 AM - 8:00 AM", Price: 5999, Currency: "INR", CoachName: "Coach Priya", VenueName: "Court A - Indoor"},
			Capacity: 6, Enrolled: 6, AllowEmbedBooking: false},
	}
}

// SeedDemo loads the demo academy with its batches and appointment slots
// for today and tomorrow. Running it again resets the demo catalog.
func (d *Database) SeedDemo(ctx context.Context, today time.Time) error {
	if err := d.SaveAcademy(ctx, demoConfig()); err != nil {
		return err
	}
	for _, b := range demoBatches() {
		if err := d.SaveBatch(ctx, DemoAcademyID, b); err != nil {
			return err
		}
	}

	day := today.UTC().Format(time.DateOnly)
	next := today.UTC().AddDate(0, 0, 1).Format(time.DateOnly)
	slots := []struct {
		slot   models.AppointmentSlot
		booked bool
	}{
		{models.AppointmentSlot{Date: day, Time: "10:00", CoachID: "coach-1", CoachName: "Coach Rahul"}, false},
		{models.AppointmentSlot{Date: day, Time: "11:00", CoachID: "coach-1", CoachName: "Coach Rahul"}, true},
		{models.AppointmentSlot{Date: day, Time: "14:00", CoachID: "coach-2", CoachName: "Coach Priya"}, false},
		{models.AppointmentSlot{Date: next, Time: "09:00", CoachID: "coach-1", CoachName: "Coach Rahul"}, false},
		{models.AppointmentSlot{Date: next, Time: "15:00", CoachID: "coach-2", CoachName: "Coach Priya"}, false},
	}
	for i, s := range slots {
		s.slot.ID = fmt.Sprintf("apt-%s-%d", s.slot.Date, i+1)
		s.slot.Duration = 30
		if err := d.SaveSlot(ctx, DemoAcademyID, s.slot, s.booked); err != nil {
			return err
		}
	}
	return nil
}
