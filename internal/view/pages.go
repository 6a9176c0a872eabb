package view

// Placeholder はまだ機能を持たないページの見出しと説明。
type Placeholder struct {
	Title    string
	Subtitle string
	Note     string
}

// プレースホルダーページの定義
var (
	GeneratePage = Placeholder{
		Title:    "Generer une reponse",
		Subtitle: "Collez une offre Malt et generez une reponse personnalisee",
		Note:     "Formulaire de generation - Phase 4",
	}
	DocumentsPage = Placeholder{
		Title:    "Mes documents",
		Subtitle: "CV, profil et anciennes reponses",
		Note:     "Gestion des documents - Phase 3",
	}
	HistoryPage = Placeholder{
		Title:    "Historique",
		Subtitle: "Vos reponses generees",
		Note:     "Historique des generations - Phase 5",
	}
	ProfilePage = Placeholder{
		Title:    "Profil",
		Subtitle: "Gerez votre compte",
		Note:     "Gestion du profil utilisateur - Phase 6",
	}
	AdminPage = Placeholder{
		Title:    "Administration",
		Subtitle: "Gestion des utilisateurs",
		Note:     "Panel d'administration - Phase 7",
	}
)
