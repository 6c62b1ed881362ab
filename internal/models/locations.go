package models

// Locations are the places offered for college location and route endpoints.
var Locations = []string{
	"Hyderabad", "Secunderabad", "Warangal", "Nizamabad", "Karimnagar",
	"Khammam", "Ramagundam", "Mahbubnagar", "Nalgonda", "Adilabad",
	"Suryapet", "Siddipet", "Miryalaguda", "Jagtial", "Mancherial",
	"Nirmal", "Kamareddy", "Nagarkurnool", "Medak", "Vikarabad",
}
