// Package pathology detects bony and mucosal changes around the sinus
// cavities: sclerotic thickening of the wall bone and wall-adherent
// retention cysts.
//
// Both detectors take an explicit cavity mask. Sclerosis is measured in a
// thin shell just outside the cavity and compared against reference
// cortical bone from the hard palate. Cysts are soft-tissue components
// inside the cavity that hug its wall and are compact enough to be
// rounded pockets rather than mucosal thickening.
package pathology
