package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notification.generic.title", defaultGenericTitle)
	message.SetString(lang, "notification.generic.body", defaultGenericBody)
	message.SetString(lang, "notification.generic.email_subject", defaultGenericEmailSubject)
	message.SetString(lang, "notification.email_subject.critical_prefix", defaultCriticalPrefix)
	message.SetString(lang, "notification.material_added.title", "Material added")
	message.SetString(lang, "notification.material_added.body", "New material was registered on your project.")
	message.SetString(lang, "notification.material_low_stock.title", "Low stock")
	message.SetString(lang, "notification.material_low_stock.body", "A material on your project is below its stock threshold.")
	message.SetString(lang, "notification.machinery_assigned.title", "Machinery assigned")
	message.SetString(lang, "notification.machinery_assigned.body", "Machinery was assigned to your project.")
	message.SetString(lang, "notification.machinery_status_changed.title", "Machinery status changed")
	message.SetString(lang, "notification.machinery_status_changed.body", "A machine on your project changed status.")
	message.SetString(lang, "notification.machinery_maintenance_due.title", "Maintenance due")
	message.SetString(lang, "notification.machinery_maintenance_due.body", "A machine on your project is due for maintenance.")
	message.SetString(lang, "notification.personnel_assigned.title", "Personnel assigned")
	message.SetString(lang, "notification.personnel_assigned.body", "A team member was assigned to your project.")
	message.SetString(lang, "notification.project_status_changed.title", "Project status changed")
	message.SetString(lang, "notification.project_status_changed.body", "One of your projects changed status.")
	message.SetString(lang, "notification.critical_incident.title", "Critical incident")
	message.SetString(lang, "notification.critical_incident.body", "A critical incident was reported on your project.")
	message.SetString(lang, "notification.system.title", "System notification")
	message.SetString(lang, "notification.system.body", "You have a new system notification.")
}
