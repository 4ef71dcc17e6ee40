package fee

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
)

// Reminder templates
const (
	TemplateFriendlyReminder = "friendly_reminder"
	TemplateOverdueNotice    = "overdue_notice"
)

type ReminderResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"` // students without any email address
}

type reminderData struct {
	Name     string
	Amount   string
	Category string
	DueDate  string
}

// SendReminders emails every student (and guardian) with an outstanding fee in the academic year.
// Overdue fees get an overdue notice, the others a friendly reminder.
func (svc *Service) SendReminders(ctx context.Context, tc tenant.Context, academicYearID string) (ReminderResult, error) {
	var res ReminderResult
	if err := tc.Require(tenant.CapManageFees); err != nil {
		return res, err
	}
	if academicYearID == "" {
		return res, core.NewFieldError("academic_year_id", "this field is required")
	}

	fees, err := svc.Query(ctx, tc, QueryFilter{AcademicYearID: academicYearID, Status: StatusUnpaid}, nil)
	if err != nil {
		return res, errors.Wrap(err, "querying unpaid fees")
	}
	overdue, err := svc.Query(ctx, tc, QueryFilter{AcademicYearID: academicYearID, Status: StatusOverdue}, nil)
	if err != nil {
		return res, errors.Wrap(err, "querying overdue fees")
	}
	fees = append(fees, overdue...)
	if len(fees) == 0 {
		return res, nil
	}

	categories, err := svc.repo.QueryCategories(ctx, tc.OrganizationID)
	if err != nil {
		return res, errors.Wrap(err, "querying fee categories")
	}
	categoryNames := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}

	messages := make([]*core.EmailMessage, 0, len(fees))
	for _, f := range fees {
		student, err := svc.repo.GetStudent(ctx, tc.OrganizationID, f.StudentID)
		if err != nil {
			return res, errors.Wrap(err, "finding student")
		}

		to := make([]mail.Address, 0, 2)
		if student.Email.Valid && student.Email.String != "" {
			to = append(to, mail.Address{Name: student.Name, Address: student.Email.String})
		}
		if student.GuardianEmail.Valid && student.GuardianEmail.String != "" {
			to = append(to, mail.Address{Address: student.GuardianEmail.String})
		}
		if len(to) == 0 {
			res.Skipped++
			continue
		}

		msg := &core.EmailMessage{
			To:           to,
			Subject:      "Fee payment reminder",
			TemplateName: TemplateFriendlyReminder,
			TemplateData: reminderData{
				Name:     student.Name,
				Amount:   f.PendingAmount.StringFixed(2),
				Category: categoryNames[f.CategoryID],
				DueDate:  f.DueDate.Format("02 Jan 2006"),
			},
		}
		if f.Status == StatusOverdue {
			msg.Subject = "Overdue fee notice"
			msg.TemplateName = TemplateOverdueNotice
		}
		messages = append(messages, msg)
	}

	svc.mail.SendMessages(messages...)
	res.Sent = len(messages)
	return res, nil
}
