package workflow

// StepDef is one node of the workflow's directed graph (§3 Workflow step):
// a task-instruction template with session-bound {placeholder} fields, the
// tool names permitted while on this step, and whether the step is a
// server-side routing hop that the engine must process immediately without
// waiting for a user message (§4.6 "server-side transitions").
type StepDef struct {
	Number     int
	Task       string
	Tools      []string
	ServerSide bool
}

// reservedSteps are never defined and always fatal if returned by the
// model (§4.6).
var reservedSteps = map[int]bool{17: true, 25: true, 26: true, 27: true, 31: true}

// IsReserved reports whether step is one of the reserved/unused numbers.
func IsReserved(step int) bool { return reservedSteps[step] }

// IsInDeclaredRange reports whether step falls within one of the three
// ranges the session step pointer may hold (§3 Session). The 100..117
// range is part of that type but has no steps defined in the graph the
// state-machine summary describes (§4.6) — re-registration enters at 200,
// not 100 — so it is accepted as a valid pointer value but UnknownStep
// still fires if the model ever actually returns one, same as any other
// undefined number in-range.
func IsInDeclaredRange(step int) bool {
	return (step >= 1 && step <= 35) || (step >= 100 && step <= 117) || (step >= 200 && step <= 217)
}

// steps is the complete task-template table for the new-registration
// (1..35) and re-registration-entry (200..202) graphs described in §4.6's
// state machine summary. Re-registration converges onto the same 30..35
// payment/kit/photo tail as new registration once step 202 completes.
var steps = map[int]StepDef{
	1: {
		Number: 1,
		Task: "Greet the parent and ask for the parent/guardian's first and last name. " +
			"Accept free text; title-case both names before storing. Stay on step 1 until you have both names.",
	},
	2: {
		Number: 2,
		Task: "Ask for the parent's UK mobile number. Accept common UK formats (07xxx, +447xxx, " +
			"0044 7xxx) and normalise to 07xxxxxxxxx. Stay on step 2 until the number is a valid UK mobile.",
	},
	3: {
		Number: 3,
		Task:   "Ask for the parent's email address. Lowercase it before storing. Stay on step 3 until it looks like a real email address.",
	},
	4: {
		Number: 4,
		Task:   "Ask for the child's first and last name. Title-case both names before storing. Stay on step 4 until you have both names.",
	},
	5: {
		Number: 5,
		Task: "Ask for the child's date of birth. Accept common date phrasing and normalise to DD-MM-YYYY, " +
			"then call dob_validate to confirm it's a real calendar date. If invalid, ask again on step 5.",
		Tools: []string{"dob_validate"},
	},
	6: {
		Number: 6,
		Task:   "Ask for the family's home postcode. Call address_validate to check the format. If invalid, ask again on step 6.",
		Tools:  []string{"address_validate"},
	},
	7: {
		Number: 7,
		Task: "Ask for the house number or name. Call address_lookup with the postcode from step 6 and this " +
			"house identifier. If a match is found, move to step 8; if not, move to step 9 for a manual address.",
		Tools: []string{"address_lookup"},
	},
	8: {
		Number: 8,
		Task:   "Read back the address address_lookup found and ask the parent to confirm it's correct. If they say no, move back to step 9.",
	},
	9: {
		Number: 9,
		Task:   "Ask the parent to type their address manually: house/street line, and town or city.",
	},
	10: {
		Number: 10,
		Task:   "Confirm the manually-entered address back to the parent before moving on.",
	},
	11: {
		Number: 11,
		Task: "Ask whether the child has any medical conditions, allergies, or additional needs the " +
			"coaching staff should know about. A plain \"no\" is a valid, complete answer.",
	},
	12: {
		Number: 12,
		Task:   "Ask whether this child shares a home address with another player already registered with the club this season.",
	},
	13: {
		Number: 13,
		Task: "If the parent said yes to sharing an address with an existing player, move to step 14 to confirm " +
			"which player; if no, move straight to step 15.",
	},
	14: {
		Number: 14,
		Task:   "Ask for the name of the existing player this child shares an address with, then move to step 15.",
	},
	15: {
		Number: 15,
		Task:   "Summarise the contact and address details collected so far and ask the parent to confirm them before moving on to step 16.",
	},
	16: {
		Number:     16,
		Task:       "Server-side hop: no user-visible question. If the parent indicated a shared address in steps 12-14, set routine_number to 18; otherwise set it to 22.",
		ServerSide: true,
	},
	18: {
		Number: 18,
		Task:   "Ask whether a second parent or guardian should also be added as a contact for this child.",
	},
	19: {
		Number: 19,
		Task:   "Ask for an emergency contact name and phone number distinct from the parent already on file.",
	},
	20: {
		Number: 20,
		Task:   "Ask for any additional detail needed to complete the emergency contact record.",
	},
	21: {
		Number: 21,
		Task:   "Confirm the contact details collected in steps 18-20, then move on to step 22.",
	},
	22: {
		Number:     22,
		Task:       "Server-side hop: no user-visible question. If the age group for this registration is U7 or U8, set routine_number to 23; otherwise set it to 28.",
		ServerSide: true,
	},
	23: {
		Number: 23,
		Task:   "For mini-soccer age groups, ask whether a parent is able to help out as a matchday helper this season.",
	},
	24: {
		Number: 24,
		Task:   "Thank the parent for the mini-soccer helper answer and move on to step 28.",
	},
	28: {
		Number: 28,
		Task: "Ask for the preferred monthly Direct Debit payment day (a number 1-31; days 29-31 are treated as " +
			"\"last day of the month\"). Once given, call write_registration with all collected fields, then " +
			"call payment_token_create with the normalised day. Stay on step 28 until both calls succeed.",
		Tools: []string{"write_registration", "payment_token_create"},
	},
	29: {
		Number: 29,
		Task:   "Confirm the Direct Debit has been set up and an SMS confirmation has been sent, then move on to step 30.",
	},
	30: {
		Number: 30,
		Task: "Server-side-adjacent: call check_kit_needed for this player. If a kit is already on file, set " +
			"routine_number to 34; otherwise set it to 32.",
		Tools: []string{"check_kit_needed"},
	},
	32: {
		Number: 32,
		Task:   "Ask for a preferred shirt number 1-25. Call shirt_number_check; if taken, ask for another number on step 32.",
		Tools:  []string{"shirt_number_check"},
	},
	33: {
		Number: 33,
		Task:   "Ask for a kit size from the club's size chart. Call write_kit with the chosen size and shirt number, then move on to step 34.",
		Tools:  []string{"write_kit"},
	},
	34: {
		Number: 34,
		Task: "Ask the parent to upload a photo of the child for their player ID. Once a photo has been stored, " +
			"call write_photo_url with its URL, then move on to step 35.",
		Tools: []string{"put_image", "write_photo_url"},
	},
	35: {
		Number: 35,
		Task:   "Thank the parent, confirm registration is complete, and let them know the club will be in touch. This is the final step: set routine_number to null.",
	},
	200: {
		Number: 200,
		Task:   "Call player_lookup for the player named in the registration code against last season. If no record is found, explain that re-registration isn't possible and end the conversation. If found, move to step 201.",
		Tools:  []string{"player_lookup"},
	},
	201: {
		Number: 201,
		Task: "As a security check, ask the parent to confirm the child's date of birth and home postcode. " +
			"Compare both against the record found in step 200; if either doesn't match, explain you can't verify " +
			"their identity and end the conversation. If both match, move to step 202.",
	},
	202: {
		Number: 202,
		Task:   "Call copy_record_to_current_season with the verified record and the current season marker, then move on to step 28 to confirm or update the payment day.",
		Tools:  []string{"copy_record_to_current_season"},
	},
}

// Lookup returns the StepDef for step, or false if it has no template
// (either it is reserved or simply undefined in the declared ranges).
func Lookup(step int) (StepDef, bool) {
	def, ok := steps[step]
	return def, ok
}
