package templates

import "fmt"

var navLinks = []struct{ Path, Label string }{
	{"/", "Home"},
	{"/patients", "Patients"},
	{"/experiments", "Experiments"},
}

func experimentURL(id int64) string {
	return fmt.Sprintf("/experiments/%d", id)
}

func pdfURL(id int64, changelog bool) string {
	u := fmt.Sprintf("/experiments/%d/pdf", id)
	if changelog {
		u += "?changelog=true"
	}
	return u
}

func statusClass(status string) string {
	switch status {
	case "unavailable", "unknown":
		return "status status-muted"
	default:
		return "status"
	}
}

func createdSuffix(created bool) string {
	if created {
		return " (created)"
	}
	return " (existing)"
}
