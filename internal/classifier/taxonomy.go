package classifier

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

// Category is one entry of the taxonomy: a display name, the marketplace
// category id and the keywords that vote for it.
type Category struct {
	Name     string   `yaml:"name"`
	ID       string   `yaml:"id"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy is the immutable category table used by the classifier.
// Category order matters: earlier categories win full keyword ties.
type Taxonomy struct {
	categories []Category
	byID       map[string]string
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// NewTaxonomy validates and copies the given categories.
func NewTaxonomy(categories []Category) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidTaxonomy)
	}

	t := &Taxonomy{
		categories: make([]Category, 0, len(categories)),
		byID:       make(map[string]string, len(categories)),
	}
	seen := make(map[string]bool, len(categories))

	for _, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: category without name", ErrInvalidTaxonomy)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidTaxonomy, c.Name)
		}
		seen[c.Name] = true

		if c.Weight == 0 {
			c.Weight = 1.0
		}
		if c.Weight < 0 {
			return nil, fmt.Errorf("%w: negative weight for %q", ErrInvalidTaxonomy, c.Name)
		}

		keywords := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		c.Keywords = keywords

		if c.ID != "" {
			t.byID[c.ID] = c.Name
		}
		t.categories = append(t.categories, c)
	}

	return t, nil
}

// LoadTaxonomy reads a taxonomy from a YAML file of the form
//
//	categories:
//	  - name: Games
//	    id: MLB1144
//	    weight: 1.0
//	    keywords: [console, playstation]
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes a YAML taxonomy document.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	return NewTaxonomy(f.Categories)
}

// Marshal encodes the taxonomy back to YAML.
func (t *Taxonomy) Marshal() ([]byte, error) {
	return yaml.Marshal(taxonomyFile{Categories: t.Categories()})
}

// Categories returns a copy of the category table.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		c.Keywords = append([]string(nil), c.Keywords...)
		out[i] = c
	}
	return out
}

// CategoryByID resolves a marketplace category id.
func (t *Taxonomy) CategoryByID(id string) (string, bool) {
	name, ok := t.byID[id]
	return name, ok
}

// DefaultTaxonomy returns the built-in Mercado Livre Brazil category table.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(defaultCategories())
	if err != nil {
		panic(fmt.Sprintf("default taxonomy: %v", err))
	}
	return t
}

func defaultCategories() []Category {
	return []Category{
		{
			Name:   "Eletrônicos, Áudio e Vídeo",
			ID:     "MLB1000",
			Weight: 1.0,
			Keywords: []string{
				"tv", "televisão", "televisor", "smart tv", "led", "lcd", "oled", "qled",
				"eletrônico", "eletronico", "som", "audio", "áudio", "fone", "headset",
				"speaker", "caixa de som", "amplificador", "receiver", "home theater",
				"câmera", "camera", "fotografia", "filmadora", "drone", "gopro",
				"soundbar", "subwoofer", "toca-discos", "vinil", "cd player",
				"microfone", "mixer", "estúdio", "gravação",
			},
		},
		{
			Name:   "Celulares e Telefones",
			ID:     "MLB1055",
			Weight: 1.0,
			Keywords: []string{
				"smartphone", "celular", "iphone", "samsung galaxy", "xiaomi", "motorola",
				"lg", "huawei", "oneplus", "pixel", "telefone", "mobile", "android", "ios",
				"capinha", "película", "carregador", "cabo usb", "power bank", "bateria",
				"fone bluetooth", "airpods", "earbuds", "smartwatch", "apple watch",
				"celular desbloqueado", "dual chip", "5g", "4g", "smartphone android",
			},
		},
		{
			Name:   "Informática",
			ID:     "MLB1648",
			Weight: 1.0,
			Keywords: []string{
				"notebook", "laptop", "computador", "pc", "desktop", "all in one",
				"processador", "cpu", "intel", "amd", "ryzen", "core i3", "core i5", "core i7",
				"placa de vídeo", "gpu", "nvidia", "radeon", "geforce", "gtx", "rtx",
				"memória ram", "ddr4", "ddr5", "ssd", "hd", "disco rígido", "storage",
				"placa mãe", "motherboard", "fonte", "gabinete", "cooler", "monitor",
				"teclado", "mouse", "mousepad", "webcam", "microfone", "impressora",
				"scanner", "roteador", "modem", "wi-fi", "cabo de rede", "switch",
				"pendrive", "hd externo", "backup", "software", "windows", "office",
				"ultrabook", "chromebook", "macbook",
			},
		},
		{
			Name:   "Casa, Móveis e Decoração",
			ID:     "MLB1574",
			Weight: 1.0,
			Keywords: []string{
				"móvel", "movel", "sofá", "sofa", "poltrona", "cadeira", "mesa", "cama",
				"guarda-roupa", "armário", "armario", "estante", "rack", "aparador",
				"colchão", "colchao", "travesseiro", "lençol", "lencol", "edredom",
				"cortina", "persiana", "tapete", "carpete", "luminária", "luminaria",
				"abajur", "lustre", "pendente", "espelho", "quadro", "decoração", "decoracao",
				"vaso", "planta", "jardim", "cozinha", "banheiro", "quarto", "sala",
				"panela", "frigideira", "utensílio", "utensilio", "talheres", "pratos",
				"xícara", "xicara", "copo", "garrafa", "organizador", "gaveta",
				"criado-mudo", "cômoda", "penteadeira", "painel tv",
			},
		},
		{
			Name:   "Eletrodomésticos e Casa",
			ID:     "MLB1556",
			Weight: 1.0,
			Keywords: []string{
				"ar condicionado", "ventilador", "aquecedor", "micro-ondas", "microondas",
				"geladeira", "refrigerador", "freezer", "lava-louça", "lavadora",
				"fogão", "cooktop", "forno elétrico", "aspirador", "liquidificador",
				"batedeira", "processador", "cafeteira", "sanduicheira", "grill",
				"ferro de passar", "secadora", "lava e seca", "air fryer", "fritadeira",
			},
		},
		{
			Name:   "Roupas e Calçados",
			ID:     "MLB1430",
			Weight: 1.0,
			Keywords: []string{
				"roupa", "vestuário", "vestuario", "camiseta", "camisa", "blusa", "top",
				"vestido", "saia", "short", "bermuda", "calça", "calca", "jeans",
				"legging", "moletom", "casaco", "jaqueta", "blazer", "colete",
				"sapato", "tênis", "tenis", "sandália", "sandalia", "chinelo", "bota",
				"sapatênis", "sapatenis", "scarpin", "salto", "rasteirinha",
				"bolsa", "mochila", "carteira", "necessaire", "mala", "pochete",
				"masculino", "feminino", "infantil", "bebê", "bebe",
				"polo", "regata", "cropped", "midi", "maxi",
			},
		},
		{
			Name:   "Esportes e Fitness",
			ID:     "MLB1276",
			Weight: 1.0,
			Keywords: []string{
				"esporte", "fitness", "academia", "ginástica", "ginastica", "musculação", "musculacao",
				"futebol", "bola", "chuteira", "camisa de time", "basquete", "vôlei", "volei",
				"tênis esportivo", "corrida", "maratona", "caminhada", "running",
				"bicicleta", "bike", "ciclismo", "capacete", "natação", "natacao", "piscina",
				"halteres", "peso", "anilha", "barra", "esteira", "elíptico", "eliptico",
				"yoga", "pilates", "colchonete", "faixa elástica", "suplemento", "whey",
				"creatina", "bcaa", "surf", "prancha", "skate", "patins", "patinete",
				"crossfit", "treino funcional", "kettlebell",
			},
		},
		{
			Name:   "Livros, Revistas e Comics",
			ID:     "MLB3025",
			Weight: 1.0,
			Keywords: []string{
				"livro", "ebook", "literatura", "romance", "ficção", "ficcao", "biografia",
				"autoajuda", "auto-ajuda", "negócios", "negocios", "economia", "política", "politica",
				"história", "historia", "geografia", "ciência", "ciencia", "matemática", "matematica",
				"física", "fisica", "química", "quimica", "biologia", "medicina",
				"psicologia", "filosofia", "sociologia", "educação", "educacao",
				"infantil", "juvenil", "didático", "didatico", "apostila", "curso",
				"revista", "gibi", "mangá", "manga", "hq", "quadrinhos", "comic",
			},
		},
		{
			Name:   "Saúde e Beleza",
			ID:     "MLB263532",
			Weight: 1.0,
			Keywords: []string{
				"maquiagem", "cosméticos", "cosmeticos", "batom", "base", "corretivo",
				"rímel", "rimel", "sombra", "blush", "pó", "po", "primer", "gloss",
				"perfume", "colônia", "colonia", "desodorante", "antitranspirante",
				"shampoo", "condicionador", "máscara capilar", "mascara capilar",
				"creme", "hidratante", "protetor solar", "sabonete", "esfoliante",
				"sérum", "serum", "tônico", "tonico", "demaquilante", "água micelar", "agua micelar",
				"escova", "pente", "secador", "chapinha", "babyliss", "depilador",
				"nail art", "esmalte", "acetona", "lixa", "alicate",
				"vitamina", "suplemento", "medicamento",
			},
		},
		{
			Name:   "Games",
			ID:     "MLB1144",
			Weight: 1.0,
			Keywords: []string{
				"video game", "videogame", "console", "playstation", "ps5", "ps4", "ps3",
				"xbox", "nintendo", "switch", "controle", "joystick", "gamepad",
				"jogo", "game", "cd", "dvd", "blu-ray", "digital", "steam", "epic",
				"pc gamer", "gaming", "headset gamer", "teclado gamer", "mouse gamer",
				"cadeira gamer", "mesa gamer", "monitor gamer", "placa de captura",
				"streamer", "twitch", "youtube", "fps", "rpg", "mmorpg", "battle royale",
				"minecraft", "fortnite", "gta", "fifa", "pes", "call of duty",
			},
		},
		{
			Name:   "Carros, Motos e Outros",
			ID:     "MLB1743",
			Weight: 1.0,
			Keywords: []string{
				"carro", "automóvel", "automovel", "veículo", "veiculo", "auto", "motor",
				"pneu", "roda", "aro", "calota", "freio", "pastilha", "disco", "amortecedor",
				"óleo", "oleo", "filtro", "bateria", "alternador", "radiador", "vela",
				"correia", "escapamento", "para-choque", "para-brisa", "farol", "lanterna",
				"retrovisor", "banco", "volante", "câmbio", "cambio", "embreagem",
				"som automotivo", "alarme", "trava", "película", "cera", "enceradeira",
				"aspirador automotivo", "suporte", "carregador veicular", "gps", "dvr",
				"moto", "motocicleta", "capacete moto",
			},
		},
		{
			Name:   "Relógios e Joias",
			ID:     "MLB1137",
			Weight: 1.0,
			Keywords: []string{
				"relógio", "relogio", "smartwatch", "apple watch", "citizen", "casio",
				"óculos", "oculos", "colar", "pulseira", "anel", "brinco",
				"joia", "jóia", "ouro", "prata", "folheado", "semi-joia",
			},
		},
	}
}
